package docker

import (
	"fmt"
	"time"
)

// Label keys put on every helper container. The "batchclip." prefix keeps
// them apart from labels set by other tools.
const (
	LabelPrefix    = "batchclip."
	LabelManagedBy = LabelPrefix + "managed-by"
	LabelRunID     = LabelPrefix + "run-id"
	LabelTool      = LabelPrefix + "tool"
	LabelCreatedAt = LabelPrefix + "created-at"
)

// ManagedByValue is the value of LabelManagedBy on every helper container.
const ManagedByValue = "batch-clip"

// HelperContainer describes a GDAL helper container found on the daemon.
type HelperContainer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	State     string    `json:"state"`
	RunID     string    `json:"runId"`
	Tool      string    `json:"tool"`
	CreatedAt time.Time `json:"createdAt"`
}

// BuildLabels returns the labels for a helper container running tool on
// behalf of run runID.
func BuildLabels(runID, tool string, createdAt time.Time) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelRunID:     runID,
		LabelTool:      tool,
		LabelCreatedAt: createdAt.UTC().Format(time.RFC3339),
	}
}

// ParseLabels reads the helper metadata back from container labels.
// Returns an error when the container is not managed by batch-clip or the
// timestamp is malformed.
func ParseLabels(labels map[string]string) (HelperContainer, error) {
	if labels[LabelManagedBy] != ManagedByValue {
		return HelperContainer{}, fmt.Errorf("container is not managed by %s", ManagedByValue)
	}

	h := HelperContainer{
		RunID: labels[LabelRunID],
		Tool:  labels[LabelTool],
	}
	if raw := labels[LabelCreatedAt]; raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return HelperContainer{}, fmt.Errorf("invalid %s label %q: %w", LabelCreatedAt, raw, err)
		}
		h.CreatedAt = t
	}
	return h, nil
}
