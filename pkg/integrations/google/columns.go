package google

// ColumnLetter converts a zero-based column index into spreadsheet column
// notation using bijective base-26: 0 -> "A", 25 -> "Z", 26 -> "AA",
// 701 -> "ZZ", 702 -> "AAA".
func ColumnLetter(index int) string {
	if index < 0 {
		return ""
	}

	var letters []byte
	for {
		letters = append([]byte{byte('A' + index%26)}, letters...)
		index = index/26 - 1
		if index < 0 {
			break
		}
	}
	return string(letters)
}
