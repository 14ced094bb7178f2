package kafka

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/stream"
)

// positions maps a partition to the offset of the next message to read.
type positions map[int]int64

// parseCursor decodes "partition:offset" pairs separated by commas.
func parseCursor(c stream.Cursor) (positions, error) {
	pos := positions{}
	if c.IsZero() {
		return pos, nil
	}
	for _, pair := range strings.Split(string(c), ",") {
		ps, offs, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, invalidCursor(c)
		}
		p, err := strconv.Atoi(ps)
		if err != nil || p < 0 {
			return nil, invalidCursor(c)
		}
		off, err := strconv.ParseInt(offs, 10, 64)
		if err != nil || off < 0 {
			return nil, invalidCursor(c)
		}
		if _, dup := pos[p]; dup {
			return nil, invalidCursor(c)
		}
		pos[p] = off
	}
	return pos, nil
}

func invalidCursor(c stream.Cursor) error {
	return errors.InvalidParams(fmt.Sprintf("kafka cursor %q is not a partition:offset list", c))
}

// cursor encodes pos with partitions in ascending order.
func (pos positions) cursor() stream.Cursor {
	var b strings.Builder
	for i, p := range slices.Sorted(maps.Keys(pos)) {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(p))
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(pos[p], 10))
	}
	return stream.Cursor(b.String())
}
