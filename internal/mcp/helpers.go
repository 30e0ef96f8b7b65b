package mcpserver

import (
	"fmt"
	"strings"

	"drawgen/internal/adapter"
	"drawgen/internal/geometry"

	"github.com/tidwall/gjson"
)

// findElement returns the array index of the element with id in code, or -1.
func findElement(code, id string) (int, gjson.Result) {
	idx := -1
	var found gjson.Result
	gjson.Parse(code).ForEach(func(key, value gjson.Result) bool {
		if value.Get("id").String() == id {
			idx = int(key.Int())
			found = value
			return false
		}
		return true
	})
	return idx, found
}

// elementPath builds an sjson path to field of the element at idx.
func elementPath(idx int, field string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`)
	return fmt.Sprintf("%d.%s", idx, r.Replace(field))
}

// shapeRects returns the boxes of every non-connector element in code.
func shapeRects(code string) []geometry.Rect {
	elements, _ := adapter.Decode(code)
	var rects []geometry.Rect
	for _, el := range elements {
		if el.Type.IsConnector() {
			continue
		}
		rects = append(rects, geometry.Rect{X: el.X, Y: el.Y, W: el.Width, H: el.Height})
	}
	return rects
}

// combineReports merges the decode report into a conversion report.
func combineReports(decode, convert adapter.Report) adapter.Report {
	out := adapter.Report{Dropped: append(decode.Dropped, convert.Dropped...), Renamed: convert.Renamed}
	for from, to := range decode.Renamed {
		if out.Renamed == nil {
			out.Renamed = make(map[string]string)
		}
		out.Renamed[from] = to
	}
	return out
}
