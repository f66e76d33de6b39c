// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package engine

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/docker/docker/api/types/container"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed stats.schema.json
var statsSchemaJSON []byte

const statsSchemaURL = "./stats.schema.json"

// statsSchema returns the compiled schema for single-shot container stats
// documents. The schema is embedded, so failing to compile it is a
// programming error.
var statsSchema = sync.OnceValue(func() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(statsSchemaJSON))
	if err != nil {
		panic("invalid embedded stats schema: " + err.Error())
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(statsSchemaURL, doc); err != nil {
		panic("cannot add embedded stats schema: " + err.Error())
	}
	return c.MustCompile(statsSchemaURL)
})

// decodeStats validates the raw stats document against the stats schema and
// only then decodes it. Documents the engine returns for containers it cannot
// gather stats for (such as an empty object) are thus rejected explicitly
// instead of silently turning into all-zero records.
func decodeStats(body []byte) (container.StatsResponse, error) {
	var stats container.StatsResponse
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return stats, fmt.Errorf("malformed JSON: %w", err)
	}
	if err := statsSchema().Validate(inst); err != nil {
		return stats, fmt.Errorf("unexpected stats document: %w", err)
	}
	if err := json.Unmarshal(body, &stats); err != nil {
		return stats, err
	}
	return stats, nil
}
