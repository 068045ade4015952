package gateway

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

var ErrNotesTooLarge = errors.New("order notes exceed the gateway limits")

// splitNotes breaks every value longer than limit bytes into key_0, key_1, ... chunks so
// that gateways with a per-note size cap still carry the whole value. Chunks never cut a
// UTF-8 sequence. It fails when the result needs more than maxNotes entries.
func splitNotes(notes map[string]string, limit, maxNotes int) (map[string]string, error) {
	out := make(map[string]string, len(notes))
	for k, v := range notes {
		if len(v) <= limit {
			out[k] = v
			continue
		}
		for i, chunk := range chunkString(v, limit) {
			out[chunkKey(k, i)] = chunk
		}
	}
	if len(out) > maxNotes {
		return nil, fmt.Errorf("%w: %d notes, at most %d allowed", ErrNotesTooLarge, len(out), maxNotes)
	}
	return out, nil
}

// joinNotes reassembles values that splitNotes chunked.
func joinNotes(notes map[string]string) map[string]string {
	out := make(map[string]string, len(notes))
	var bases []string
	for k, v := range notes {
		if base, ok := strings.CutSuffix(k, "_0"); ok && base != "" {
			if _, plain := notes[base]; !plain {
				bases = append(bases, base)
				continue
			}
		}
		out[k] = v
	}
	sort.Strings(bases)

	for _, base := range bases {
		var b strings.Builder
		for i := 0; ; i++ {
			chunk, ok := notes[chunkKey(base, i)]
			if !ok {
				break
			}
			b.WriteString(chunk)
			delete(out, chunkKey(base, i))
		}
		out[base] = b.String()
	}
	return out
}

func chunkKey(base string, i int) string {
	return base + "_" + strconv.Itoa(i)
}

func chunkString(s string, limit int) []string {
	var chunks []string
	for len(s) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			cut = limit
		}
		chunks = append(chunks, s[:cut])
		s = s[cut:]
	}
	return append(chunks, s)
}
