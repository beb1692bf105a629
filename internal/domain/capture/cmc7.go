package capture

import "regexp"

var reCMC7 = regexp.MustCompile(`CMC7-(\d+)`)

// minCMC7Digits is the shortest digit run that covers every field offset.
const minCMC7Digits = 23

// RoutingLine is a decoded CMC7 band.
type RoutingLine struct {
	BankCode      string
	BranchCode    string
	AccountNumber string
	Key           string
	Digits        string
}

// DecodeCMC7 slices a "CMC7-<digits>" line by fixed offsets:
// bank [0,5), branch [5,10), account [10,21), key [21,23).
// No checksum is verified.
func DecodeCMC7(line string) (RoutingLine, bool) {
	m := reCMC7.FindStringSubmatch(line)
	if m == nil || len(m[1]) < minCMC7Digits {
		return RoutingLine{}, false
	}
	d := m[1]
	return RoutingLine{
		BankCode:      d[0:5],
		BranchCode:    d[5:10],
		AccountNumber: d[10:21],
		Key:           d[21:23],
		Digits:        d,
	}, true
}
