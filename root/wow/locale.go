package wow

import "strings"

// Locale flags of root blocks.
const (
	LocaleEnUS uint32 = 0x2
	LocaleKoKR uint32 = 0x4
	LocaleFrFR uint32 = 0x10
	LocaleDeDE uint32 = 0x20
	LocaleZhCN uint32 = 0x40
	LocaleEsES uint32 = 0x80
	LocaleZhTW uint32 = 0x100
	LocaleEnGB uint32 = 0x200
	LocaleEnCN uint32 = 0x400
	LocaleEnTW uint32 = 0x800
	LocaleEsMX uint32 = 0x1000
	LocaleRuRU uint32 = 0x2000
	LocalePtBR uint32 = 0x4000
	LocaleItIT uint32 = 0x8000
	LocalePtPT uint32 = 0x10000
	LocaleAll  uint32 = 0xFFFFFFFF
)

var localeNames = map[string]uint32{
	"enUS": LocaleEnUS, "koKR": LocaleKoKR, "frFR": LocaleFrFR, "deDE": LocaleDeDE,
	"zhCN": LocaleZhCN, "esES": LocaleEsES, "zhTW": LocaleZhTW, "enGB": LocaleEnGB,
	"enCN": LocaleEnCN, "enTW": LocaleEnTW, "esMX": LocaleEsMX, "ruRU": LocaleRuRU,
	"ptBR": LocalePtBR, "itIT": LocaleItIT, "ptPT": LocalePtPT,
}

var knownLocales uint32

func init() {
	for _, f := range localeNames {
		knownLocales |= f
	}
}

// ValidLocale reports whether flags is LocaleAll or a combination of known
// locales.
func ValidLocale(flags uint32) bool {
	return flags == LocaleAll || flags&^knownLocales == 0
}

// ParseLocale returns the flag of a locale name such as "enUS".
func ParseLocale(name string) (uint32, bool) {
	if strings.EqualFold(name, "all") {
		return LocaleAll, true
	}
	for n, f := range localeNames {
		if strings.EqualFold(n, name) {
			return f, true
		}
	}
	return 0, false
}

// Content flags of root blocks.
const (
	ContentLoadOnWindows uint32 = 0x8
	ContentLoadOnMacOS   uint32 = 0x10
	ContentLowViolence   uint32 = 0x80
	ContentDoNotLoad     uint32 = 0x100
	ContentUpdatePlugin  uint32 = 0x800
	ContentEncrypted     uint32 = 0x8000000
	ContentNoNameHash    uint32 = 0x10000000
	ContentUncommonRes   uint32 = 0x20000000
	ContentBundle        uint32 = 0x40000000
	ContentNoCompression uint32 = 0x80000000
)
