package collection

// CheckContent runs the composable content-check pipeline from spec.md
// §4.2: currently just the built-in duplicate checker, but structured so
// additional closures could be appended without reshaping the API.
func (c *IdCollection) CheckContent(applyFix, silent bool) (errs []string, warnings []string) {
	if c.spec.Duplicates == DuplicatesAllow || c.spec.ExtractValue == nil {
		return nil, nil
	}

	seen := make(map[string]string, len(c.order)) // value -> first index that had it
	var duplicateKeys []string
	for _, k := range c.order {
		cargo, ok := c.entries[k]
		if !ok {
			continue
		}
		val, ok := c.spec.ExtractValue(cargo)
		if !ok {
			continue
		}
		if _, dup := seen[val]; dup {
			duplicateKeys = append(duplicateKeys, k)
			continue
		}
		seen[val] = k
	}

	if len(duplicateKeys) == 0 {
		return nil, nil
	}

	switch c.spec.Duplicates {
	case DuplicatesForbid:
		for _, k := range duplicateKeys {
			errs = append(errs, "duplicate value at index "+k)
		}
	case DuplicatesWarn:
		for _, k := range duplicateKeys {
			warnings = append(warnings, "duplicate value at index "+k)
		}
		if applyFix {
			for _, k := range duplicateKeys {
				c.Delete(k)
			}
		}
	case DuplicatesSuppress:
		for _, k := range duplicateKeys {
			if !silent {
				warnings = append(warnings, "removed duplicate value at index "+k)
			}
			c.Delete(k)
		}
	}
	return errs, warnings
}
