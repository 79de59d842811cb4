package entity

// RawRecord is one door plate change row returned by the portal.
// District is attached by the caller, the portal never sends it.
type RawRecord struct {
	District     string `json:"district"`
	Address      string `json:"address"`
	Date         string `json:"date"`
	EditTypeCode string `json:"type"`
}

// editTypeNames maps the portal's edit kind codes to their display names.
var editTypeNames = map[string]string{
	"0": "資料維護",
	"1": "門牌初編",
	"2": "門牌改編",
	"3": "門牌增編",
	"4": "門牌合併",
	"5": "門牌廢止",
	"6": "行政區域調整",
	"7": "門牌整編",
	"8": "戶政事務合併",
	"F": "行政區域調整錯誤更正",
	"G": "門牌整編錯誤更正",
}

// EditTypeName returns the display name for an edit kind code, or the code
// itself when it is unknown.
func EditTypeName(code string) string {
	if name, ok := editTypeNames[code]; ok {
		return name
	}
	return code
}

// ValidEditKind reports whether code is a known edit kind.
func ValidEditKind(code string) bool {
	_, ok := editTypeNames[code]
	return ok
}
