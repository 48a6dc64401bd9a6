package tabular

import "strconv"

// GroupBySchema splits rows into tables of identical key sets.
//
// Buckets are ordered by the first appearance of each key set and keep the
// relative order of their rows. When every row shares one key set the result
// is a single DefaultTableName table holding rows unchanged.
func GroupBySchema(rows []*Record) []Table {
	if len(rows) == 0 {
		return nil
	}

	index := make(map[string]int)
	var buckets [][]*Record
	for _, row := range rows {
		fp := row.Fingerprint()
		i, ok := index[fp]
		if !ok {
			i = len(buckets)
			index[fp] = i
			buckets = append(buckets, nil)
		}
		buckets[i] = append(buckets[i], row)
	}

	if len(buckets) == 1 {
		return []Table{{Name: DefaultTableName, Records: rows}}
	}
	out := make([]Table, len(buckets))
	for i, b := range buckets {
		out[i] = Table{Name: "Table " + strconv.Itoa(i+1), Records: b}
	}
	return out
}
