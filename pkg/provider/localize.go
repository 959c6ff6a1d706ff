package provider

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Message keys for user-facing configuration errors. Keys are the English
// format strings.
const (
	msgMissingKey      = "No API key configured for %s. Add one in the settings to continue."
	msgMissingEndpoint = "No endpoint configured for %s."
)

// supportedLanguages lists the catalog languages. The first entry is the
// fallback when nothing matches.
var supportedLanguages = []language.Tag{
	language.English,
	language.German,
	language.French,
	language.Spanish,
	language.Japanese,
	language.SimplifiedChinese,
}

var matcher = language.NewMatcher(supportedLanguages)

var translations = map[language.Tag]map[string]string{
	language.English: {
		msgMissingKey:      msgMissingKey,
		msgMissingEndpoint: msgMissingEndpoint,
	},
	language.German: {
		msgMissingKey:      "Für %s ist kein API-Schlüssel konfiguriert. Füge in den Einstellungen einen hinzu, um fortzufahren.",
		msgMissingEndpoint: "Für %s ist kein Endpunkt konfiguriert.",
	},
	language.French: {
		msgMissingKey:      "Aucune clé API n'est configurée pour %s. Ajoutez-en une dans les paramètres pour continuer.",
		msgMissingEndpoint: "Aucun point de terminaison n'est configuré pour %s.",
	},
	language.Spanish: {
		msgMissingKey:      "No hay ninguna clave de API configurada para %s. Añade una en la configuración para continuar.",
		msgMissingEndpoint: "No hay ningún endpoint configurado para %s.",
	},
	language.Japanese: {
		msgMissingKey:      "%s の API キーが設定されていません。設定で追加してから続行してください。",
		msgMissingEndpoint: "%s のエンドポイントが設定されていません。",
	},
	language.SimplifiedChinese: {
		msgMissingKey:      "尚未为 %s 配置 API 密钥。请在设置中添加后继续。",
		msgMissingEndpoint: "尚未为 %s 配置接口地址。",
	},
}

func init() {
	for tag, msgs := range translations {
		for key, msg := range msgs {
			if err := message.SetString(tag, key, msg); err != nil {
				panic("provider: registering translation: " + err.Error())
			}
		}
	}
}

// MatchLanguage picks the best supported language for the given preference
// list (most preferred first). Empty and unparseable entries are skipped;
// English is returned when nothing matches.
func MatchLanguage(prefs ...string) language.Tag {
	var tags []language.Tag
	for _, p := range prefs {
		if p == "" {
			continue
		}
		if t := language.Make(p); t != language.Und {
			tags = append(tags, t)
		}
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return supportedLanguages[0]
	}
	return supportedLanguages[idx]
}

// localize formats the message key in the best language for prefs.
func localize(key string, arg string, prefs ...string) string {
	return message.NewPrinter(MatchLanguage(prefs...)).Sprintf(key, arg)
}
