package metadata

import (
	"github.com/goccy/go-json"

	"github.com/acquire-zarr/zarrstream/internal/chunkbuf"
	"github.com/acquire-zarr/zarrstream/internal/dtype"
)

// ZarrJSONGroup is the v3 group marker at the store root.
func ZarrJSONGroup() ([]byte, error) {
	return json.MarshalIndent(map[string]any{
		"zarr_format": 3,
		"node_type":   "group",
	}, "", "  ")
}

// RootGroupJSONV3 builds meta/root.group.json, embedding attrs (typically
// an OME-NGFF multiscales document from GroupZAttrs) under "attributes" the
// way v3 groups carry their attributes inline rather than in a sibling file.
func RootGroupJSONV3(attrs json.RawMessage) ([]byte, error) {
	doc := map[string]any{
		"zarr_format": 3,
		"node_type":   "group",
	}
	if len(attrs) > 0 {
		var parsed map[string]any
		if err := json.Unmarshal(attrs, &parsed); err != nil {
			return nil, err
		}
		doc["attributes"] = parsed
	}
	return json.MarshalIndent(doc, "", "  ")
}

type chunkGridV3 struct {
	Name          string         `json:"name"`
	Configuration map[string]any `json:"configuration"`
}

type chunkKeyEncodingV3 struct {
	Name          string         `json:"name"`
	Configuration map[string]any `json:"configuration"`
}

type codecV3 struct {
	Name          string         `json:"name"`
	Configuration map[string]any `json:"configuration,omitempty"`
}

type storageTransformerV3 struct {
	Name          string         `json:"name"`
	Configuration map[string]any `json:"configuration"`
}

type arrayV3 struct {
	ZarrFormat          int                    `json:"zarr_format"`
	NodeType            string                 `json:"node_type"`
	Shape               []uint64               `json:"shape"`
	DataType            string                 `json:"data_type"`
	ChunkGrid           chunkGridV3            `json:"chunk_grid"`
	ChunkKeyEncoding    chunkKeyEncodingV3     `json:"chunk_key_encoding"`
	FillValue           int                    `json:"fill_value"`
	Codecs              []codecV3              `json:"codecs"`
	StorageTransformers []storageTransformerV3 `json:"storage_transformers,omitempty"`
}

// ArrayJSONV3 builds the `<level>.array.json` document for one array level,
// including the shard storage transformer when chunksPerShard describes
// more than one chunk per shard.
func ArrayJSONV3(shape, chunkShape []uint64, elem dtype.Kind, params chunkbuf.CompressionParams, chunksPerShard []uint64) ([]byte, error) {
	doc := arrayV3{
		ZarrFormat: 3,
		NodeType:   "array",
		Shape:      shape,
		DataType:   elem.V3Name(),
		ChunkGrid: chunkGridV3{
			Name:          "regular",
			Configuration: map[string]any{"chunk_shape": chunkShape},
		},
		ChunkKeyEncoding: chunkKeyEncodingV3{
			Name:          "default",
			Configuration: map[string]any{"separator": "/"},
		},
		FillValue: 0,
		Codecs:    []codecV3{{Name: "bytes", Configuration: map[string]any{"endian": "little"}}},
	}

	if params.Codec != "" {
		doc.Codecs = append(doc.Codecs, codecV3{
			Name: "blosc",
			Configuration: map[string]any{
				"cname":   bloscCName(params.Codec),
				"clevel":  params.Clevel,
				"shuffle": shuffleCode(params.Shuffle),
			},
		})
	}

	sharded := false
	for _, c := range chunksPerShard {
		if c > 1 {
			sharded = true
			break
		}
	}
	if sharded {
		doc.StorageTransformers = []storageTransformerV3{
			{
				Name: "sharding_indexed",
				Configuration: map[string]any{
					"chunks_per_shard": chunksPerShard,
				},
			},
		}
	}

	return json.MarshalIndent(doc, "", "  ")
}
