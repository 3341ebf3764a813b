package radixsort

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestSortOrdersByTrailingKey(t *testing.T) {
	const recW = 8
	const keyW = 4
	n := 50
	data := make([]byte, n*recW)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < n; i++ {
		rng.Read(data[i*recW : (i+1)*recW])
	}

	panel := []int64{int64(len(data))}
	Sort(data, recW, keyW, panel, 1)

	for i := 1; i < n; i++ {
		prevKey := data[(i-1)*recW+(recW-keyW) : i*recW]
		curKey := data[i*recW+(recW-keyW) : (i+1)*recW]
		if bytes.Compare(prevKey, curKey) > 0 {
			t.Fatalf("record %d out of order: %x > %x", i, prevKey, curKey)
		}
	}
}

func TestSortStableOnEqualKeys(t *testing.T) {
	const recW = 4
	const keyW = 1
	data := []byte{1, 0, 0, 5, 2, 0, 0, 5, 3, 0, 0, 5}
	panel := []int64{int64(len(data))}
	Sort(data, recW, keyW, panel, 1)
	for i := 0; i < 3; i++ {
		if data[i*recW] != byte(i+1) || data[i*recW+recW-1] != 5 {
			t.Fatalf("record %d reordered or key corrupted", i)
		}
	}
}

func TestSplitRangesCoversAllContigs(t *testing.T) {
	panel := []int64{10, 20, 5, 40, 1}
	ranges := splitRanges(panel, 3)
	if ranges[0].BegContig != 0 {
		t.Fatalf("first range should start at contig 0")
	}
	if ranges[len(ranges)-1].EndContig != len(panel) {
		t.Fatalf("last range should end at len(panel), got %d", ranges[len(ranges)-1].EndContig)
	}
	for i := 1; i < len(ranges); i++ {
		if ranges[i].BegContig != ranges[i-1].EndContig {
			t.Fatalf("ranges not contiguous at %d", i)
		}
	}
}
