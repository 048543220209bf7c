package metadata

import (
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/acquire-zarr/zarrstream/internal/chunkbuf"
	"github.com/acquire-zarr/zarrstream/internal/dtype"
)

func TestZArrayV2Uncompressed(t *testing.T) {
	doc, err := ZArrayV2([]uint64{10, 4, 4}, []uint64{5, 4, 4}, dtype.Uint16, chunkbuf.CompressionParams{})
	if err != nil {
		t.Fatalf("ZArrayV2: %v", err)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(doc, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got["zarr_format"].(float64) != 2 {
		t.Errorf("zarr_format = %v, want 2", got["zarr_format"])
	}
	if got["dtype"].(string) != "<u2" {
		t.Errorf("dtype = %v, want <u2", got["dtype"])
	}
	if got["order"].(string) != "C" {
		t.Errorf("order = %v, want C", got["order"])
	}
	if got["compressor"] != nil {
		t.Errorf("compressor = %v, want null when compression disabled", got["compressor"])
	}
}

func TestZArrayV2CompressedEmbedsBloscBlock(t *testing.T) {
	params := chunkbuf.CompressionParams{Codec: "blosc-zstd", Clevel: 5, Shuffle: chunkbuf.ShuffleByte}
	doc, err := ZArrayV2([]uint64{10, 4, 4}, []uint64{5, 4, 4}, dtype.Uint8, params)
	if err != nil {
		t.Fatalf("ZArrayV2: %v", err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(doc, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	comp, ok := got["compressor"].(map[string]interface{})
	if !ok {
		t.Fatalf("compressor block missing or wrong shape: %v", got["compressor"])
	}
	if comp["cname"].(string) != "zstd" {
		t.Errorf("cname = %v, want zstd", comp["cname"])
	}
	if comp["clevel"].(float64) != 5 {
		t.Errorf("clevel = %v, want 5", comp["clevel"])
	}
	if comp["shuffle"].(float64) != 1 {
		t.Errorf("shuffle = %v, want 1 (byte)", comp["shuffle"])
	}
}

func TestArrayJSONV3IncludesShardingTransformerOnlyWhenSharded(t *testing.T) {
	unsharded, err := ArrayJSONV3([]uint64{10, 4, 4}, []uint64{5, 4, 4}, dtype.Float32, chunkbuf.CompressionParams{}, []uint64{1, 1, 1})
	if err != nil {
		t.Fatalf("ArrayJSONV3: %v", err)
	}
	if strings.Contains(string(unsharded), "sharding_indexed") {
		t.Errorf("unsharded array.json should not mention sharding_indexed:\n%s", unsharded)
	}

	sharded, err := ArrayJSONV3([]uint64{10, 4, 4}, []uint64{5, 4, 4}, dtype.Float32, chunkbuf.CompressionParams{}, []uint64{2, 1, 1})
	if err != nil {
		t.Fatalf("ArrayJSONV3: %v", err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(sharded, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	transformers, ok := got["storage_transformers"].([]interface{})
	if !ok || len(transformers) != 1 {
		t.Fatalf("storage_transformers = %v, want one entry", got["storage_transformers"])
	}
	if got["data_type"].(string) != "float32" {
		t.Errorf("data_type = %v, want float32", got["data_type"])
	}
}

func TestMergeExternalOverlaysCallerKeys(t *testing.T) {
	base, err := json.Marshal(map[string]interface{}{"a": 1, "b": 2})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	merged, err := MergeExternal(base, json.RawMessage(`{"b": 3, "c": 4}`))
	if err != nil {
		t.Fatalf("MergeExternal: %v", err)
	}
	var got map[string]float64
	if err := json.Unmarshal(merged, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := map[string]float64{"a": 1, "b": 3, "c": 4}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("merged[%q] = %v, want %v", k, got[k], v)
		}
	}
}

func TestMergeExternalNoopOnEmpty(t *testing.T) {
	base, _ := json.Marshal(map[string]interface{}{"a": 1})
	merged, err := MergeExternal(base, nil)
	if err != nil {
		t.Fatalf("MergeExternal: %v", err)
	}
	if string(merged) != string(base) {
		t.Errorf("MergeExternal with nil external changed doc: %s", merged)
	}
}

func TestGroupZAttrsListsEveryLevelWithDoublingScale(t *testing.T) {
	axes := []AxisInfo{{Name: "t", Kind: "time"}, {Name: "y", Kind: "space"}, {Name: "x", Kind: "space"}}
	levels := []Level{
		{Path: "0", Scale: []float64{1, 1, 1}},
		{Path: "1", Scale: []float64{1, 2, 2}},
	}
	doc, err := GroupZAttrs(axes, levels)
	if err != nil {
		t.Fatalf("GroupZAttrs: %v", err)
	}
	var got multiscalesDoc
	if err := json.Unmarshal(doc, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(got.Multiscales) != 1 || len(got.Multiscales[0].Datasets) != 2 {
		t.Fatalf("unexpected multiscales shape: %+v", got)
	}
	if got.Multiscales[0].Datasets[1].CoordTransform[0].Scale[1] != 2 {
		t.Errorf("level 1 y-scale = %v, want 2", got.Multiscales[0].Datasets[1].CoordTransform[0].Scale)
	}
}
