package session

// deepMerge merges src onto dst in place and returns dst (creating one if
// nil). Scalars and arrays in src replace the corresponding dst value
// wholesale; only nested objects merge key-by-key. This mirrors how the
// printer emits status deltas: a changed array (e.g. the fan speed list)
// always arrives in full, never as a sparse patch (spec.md §4.6).
func deepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		srcObj, srcIsObj := v.(map[string]any)
		if !srcIsObj {
			dst[k] = v
			continue
		}

		dstObj, dstIsObj := dst[k].(map[string]any)
		if !dstIsObj {
			dstObj = make(map[string]any, len(srcObj))
		}
		dst[k] = deepMerge(dstObj, srcObj)
	}
	return dst
}
