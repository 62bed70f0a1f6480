package node

import "strings"

// splitPath breaks a dotted element path into segments, keeping bracketed
// index expressions (hosts["web-1"].port, list[3]) intact within a segment.
func splitPath(path string) []string {
	var out []string
	var cur strings.Builder
	depth := 0
	for _, r := range path {
		switch r {
		case '[':
			depth++
			cur.WriteRune(r)
		case ']':
			depth--
			cur.WriteRune(r)
		case '.':
			if depth == 0 {
				out = append(out, cur.String())
				cur.Reset()
				continue
			}
			cur.WriteRune(r)
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// parseSegment splits "name" or `name["idx"]` / "name[idx]" into the element
// name and, if present, its collection index.
func parseSegment(seg string) (name, index string, hasIndex bool) {
	i := strings.IndexByte(seg, '[')
	if i < 0 || !strings.HasSuffix(seg, "]") {
		return seg, "", false
	}
	name = seg[:i]
	index = strings.TrimSuffix(seg[i+1:], "]")
	index = strings.Trim(index, `"'`)
	return name, index, true
}
