// Package metadata emits the JSON documents Zarr readers expect (spec
// §4.5/§4.6/§6): .zarray/.zattrs for v2, zarr.json for v3, and the OME-NGFF
// 0.4 multiscales document at the group root. Marshaling goes through
// github.com/goccy/go-json, the drop-in encoder the rest of the retrieval
// pack reaches for in place of encoding/json.
package metadata

import (
	"github.com/goccy/go-json"

	"github.com/acquire-zarr/zarrstream/internal/chunkbuf"
	"github.com/acquire-zarr/zarrstream/internal/dtype"
)

// blosc-style numcodecs shuffle codes, used in the v2 compressor block.
const (
	shuffleNone = 0
	shuffleByte = 1
	shuffleBit  = 2
)

func shuffleCode(s chunkbuf.Shuffle) int {
	switch s {
	case chunkbuf.ShuffleByte:
		return shuffleByte
	case chunkbuf.ShuffleBit:
		return shuffleBit
	default:
		return shuffleNone
	}
}

func bloscCName(codec string) string {
	switch codec {
	case "blosc-zstd":
		return "zstd"
	case "blosc-lz4":
		return "lz4"
	default:
		return ""
	}
}

// v2CompressorBlock is the numcodecs-style compressor descriptor embedded in
// .zarray; nil (encoded as JSON null) when compression is disabled.
type v2CompressorBlock struct {
	ID      string `json:"id"`
	CName   string `json:"cname"`
	Clevel  int    `json:"clevel"`
	Shuffle int    `json:"shuffle"`
}

type zarrayV2 struct {
	ZarrFormat int                 `json:"zarr_format"`
	Shape      []uint64            `json:"shape"`
	Chunks     []uint64            `json:"chunks"`
	DType      string              `json:"dtype"`
	Compressor *v2CompressorBlock  `json:"compressor"`
	FillValue  int                 `json:"fill_value"`
	Order      string              `json:"order"`
	Filters    []struct{}          `json:"filters"`
}

// ZArrayV2 builds the .zarray document for one array level.
func ZArrayV2(shape, chunks []uint64, elem dtype.Kind, params chunkbuf.CompressionParams) ([]byte, error) {
	doc := zarrayV2{
		ZarrFormat: 2,
		Shape:      shape,
		Chunks:     chunks,
		DType:      elem.V2Code(),
		FillValue:  0,
		Order:      "C",
		Filters:    nil,
	}
	if params.Codec != "" {
		doc.Compressor = &v2CompressorBlock{
			ID:      "blosc",
			CName:   bloscCName(params.Codec),
			Clevel:  params.Clevel,
			Shuffle: shuffleCode(params.Shuffle),
		}
	}
	return json.MarshalIndent(doc, "", "  ")
}

// ZAttrsEmpty is the per-level .zattrs document: an empty object, per spec
// §4.5 ("Metadata (v2)... .zattrs as an empty JSON object at the level
// root").
func ZAttrsEmpty() ([]byte, error) {
	return []byte("{}"), nil
}

// ZGroup is the v2 group marker file.
func ZGroup() ([]byte, error) {
	return json.Marshal(map[string]int{"zarr_format": 2})
}

// --- OME-NGFF multiscales (group root, both v2 and v3) ---

type axis struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Unit string `json:"unit,omitempty"`
}

type scaleTransform struct {
	Type  string    `json:"type"`
	Scale []float64 `json:"scale"`
}

type dataset struct {
	Path           string           `json:"path"`
	CoordTransform []scaleTransform `json:"coordinateTransformations"`
}

type multiscale struct {
	Version  string    `json:"version"`
	Name     string    `json:"name,omitempty"`
	Axes     []axis    `json:"axes"`
	Datasets []dataset `json:"datasets"`
}

type multiscalesDoc struct {
	Multiscales []multiscale `json:"multiscales"`
}

// Level describes one written pyramid level for the multiscales document.
type Level struct {
	Path  string    // "0", "1", ...
	Scale []float64 // per-axis pixel scale relative to level 0, same axis order as the array's dimensions
}

// AxisInfo names one dimension's role for the multiscales axes array.
type AxisInfo struct {
	Name string
	Kind string // "time", "channel", "space"
}

func ngffAxisType(kind string) string {
	switch kind {
	case "time":
		return "time"
	case "channel":
		return "channel"
	default:
		return "space"
	}
}

// MergeExternal merges external, an opaque caller-supplied JSON object,
// into doc, external's keys taking precedence on conflict. A nil/empty
// external leaves doc unchanged.
func MergeExternal(doc []byte, external json.RawMessage) ([]byte, error) {
	if len(external) == 0 {
		return doc, nil
	}

	var base map[string]interface{}
	if err := json.Unmarshal(doc, &base); err != nil {
		return nil, err
	}
	var extra map[string]interface{}
	if err := json.Unmarshal(external, &extra); err != nil {
		return nil, err
	}
	for k, v := range extra {
		base[k] = v
	}
	return json.MarshalIndent(base, "", "  ")
}

// GroupZAttrs builds the OME-NGFF 0.4 multiscales document listing every
// written level with its pixel scale.
func GroupZAttrs(axes []AxisInfo, levels []Level) ([]byte, error) {
	ax := make([]axis, len(axes))
	for i, a := range axes {
		ax[i] = axis{Name: a.Name, Type: ngffAxisType(a.Kind)}
		if ax[i].Type == "space" {
			ax[i].Unit = "micrometer"
		}
	}

	ds := make([]dataset, len(levels))
	for i, lvl := range levels {
		ds[i] = dataset{
			Path: lvl.Path,
			CoordTransform: []scaleTransform{
				{Type: "scale", Scale: lvl.Scale},
			},
		}
	}

	doc := multiscalesDoc{
		Multiscales: []multiscale{
			{
				Version:  "0.4",
				Name:     "",
				Axes:     ax,
				Datasets: ds,
			},
		},
	}
	return json.MarshalIndent(doc, "", "  ")
}
