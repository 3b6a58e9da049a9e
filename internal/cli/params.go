package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/shinji-kodama/batch-clip/internal/model"
)

// resolveParams builds the run parameters from either a parameter file
// or the positional arguments. Mixing both is rejected.
func resolveParams(paramsFile string, args []string) (model.RunParams, error) {
	if paramsFile != "" {
		if len(args) > 0 {
			return model.RunParams{}, fmt.Errorf("positional parameters cannot be combined with --params")
		}
		return loadParamsFile(paramsFile)
	}
	return model.RunParamsFromArgs(args)
}

// loadParamsFile reads run parameters from a JSON file. Comments and
// trailing commas are allowed, so saved parameter sets can be annotated:
//
//	{
//	  // county boundary, 500 m margin
//	  "clipSource": "/data/admin.gdb/counties",
//	  "query": "NAME = 'Kent'",
//	  "bufferDistance": "500 Meters",
//	  "outputWorkspace": "/data/out",
//	  "gdbName": "Kent Clip",
//	  "inputWorkspace": "/data/layers",
//	}
func loadParamsFile(path string) (model.RunParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.RunParams{}, fmt.Errorf("failed to read parameter file: %w", err)
	}

	var raw struct {
		model.RunParams
		FeatureType string `json:"featureType"`
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return model.RunParams{}, fmt.Errorf("failed to parse parameter file %s: %w", path, err)
	}

	ft, err := model.ParseFeatureType(raw.FeatureType)
	if err != nil {
		return model.RunParams{}, err
	}
	params := raw.RunParams
	params.FeatureType = ft
	return params, nil
}
