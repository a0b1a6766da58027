package partition

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/smallbiznis/orderfeed/internal/order/domain"
)

// DefaultSize matches the document store's per-query identifier cap.
const DefaultSize = domain.MaxIn

// Batch is one bounded group of order ids. Key is derived from the ids so
// that an unchanged batch keeps its key across identifier-list updates.
type Batch struct {
	Key string
	IDs []string
}

// Split cuts ids into ordered, non-overlapping batches of at most size
// elements. The batches share no backing array with ids.
func Split(ids []string, size int) [][]string {
	if size <= 0 {
		size = DefaultSize
	}
	if len(ids) == 0 {
		return nil
	}
	out := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, append([]string(nil), ids[start:end]...))
	}
	return out
}

// Batches normalizes ids (trims, drops blanks and repeats, keeps the first
// occurrence) and splits them into keyed batches.
func Batches(ids []string, size int) []Batch {
	chunks := Split(Unique(ids), size)
	out := make([]Batch, 0, len(chunks))
	for _, chunk := range chunks {
		out = append(out, Batch{Key: Key(chunk), IDs: chunk})
	}
	return out
}

// Unique returns ids without blanks or repeats, preserving order.
func Unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func Key(ids []string) string {
	h := xxhash.New()
	for _, id := range ids {
		_, _ = h.WriteString(id)
		_, _ = h.Write([]byte{0})
	}
	return strconv.Itoa(len(ids)) + ":" + strconv.FormatUint(h.Sum64(), 16)
}

// Diff compares the running batch keys with the desired batches and returns
// what to start and which keys to stop.
func Diff(running map[string]struct{}, desired []Batch) (start []Batch, stop []string) {
	want := make(map[string]struct{}, len(desired))
	for _, b := range desired {
		want[b.Key] = struct{}{}
		if _, ok := running[b.Key]; !ok {
			start = append(start, b)
		}
	}
	for key := range running {
		if _, ok := want[key]; !ok {
			stop = append(stop, key)
		}
	}
	return start, stop
}
