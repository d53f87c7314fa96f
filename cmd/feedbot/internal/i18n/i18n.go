// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package i18n holds the localized strings of the bot.
package i18n

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Supported languages.
const (
	English = "en"
	Turkish = "tr"
)

// Languages lists the supported language codes.
var Languages = []string{English, Turkish}

var matcher = language.NewMatcher([]language.Tag{language.English, language.Turkish})

// Match returns the supported language closest to the BCP 47 code, such as
// "tr-TR" for Turkish. It returns false when nothing matches.
func Match(code string) (string, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", false
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "", false
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return "", false
	}
	return Languages[idx], true
}

// Key identifies a localized string.
type Key string

// Keys of localized strings.
const (
	MsgHeader         Key = "msg.header"
	MsgSource         Key = "msg.source"
	MsgTitle          Key = "msg.title"
	MsgSummary        Key = "msg.summary"
	MsgNoSummary      Key = "msg.no_summary"
	MsgAnalysis       Key = "msg.analysis"
	MsgReadMore       Key = "msg.read_more"
	Started           Key = "started"
	Help              Key = "help"
	LatestHeader      Key = "latest.header"
	SearchHeader      Key = "search.header"
	SearchUsage       Key = "search.usage"
	NothingFound      Key = "nothing_found"
	AddUsage          Key = "add.usage"
	Added             Key = "add.ok"
	AddDuplicate      Key = "add.duplicate"
	AddInvalid        Key = "add.invalid"
	TopicID           Key = "topic.id"
	TopicNone         Key = "topic.none"
	LangCurrent       Key = "lang.current"
	LangSet           Key = "lang.set"
	LangUnsupported   Key = "lang.unsupported"
	InternalError     Key = "error"
	InvalidNumber     Key = "invalid_number"
	ArchiveDisabled   Key = "archive.disabled"
	SubscribeDisabled Key = "subscribe.disabled"
)

var catalog = map[string]map[Key]string{
	English: {
		MsgHeader:    "NEW ARTICLE",
		MsgSource:    "Source",
		MsgTitle:     "Title",
		MsgSummary:   "Summary",
		MsgNoSummary: "No summary",
		MsgAnalysis:  "Analysis",
		MsgReadMore:  "Read more",
		Started:      "🤖 feedbot started. Following %d feeds.",
		Help: `Commands:
/latest [N]: latest N archived articles
/search WORDS: search the archive
/add URL: subscribe to a feed
/topicid: show the ID of this forum topic
/lang [en|tr]: show or change the language`,
		LatestHeader:      "Latest articles:",
		SearchHeader:      "Results for %q:",
		SearchUsage:       "Usage: /search WORDS",
		NothingFound:      "Nothing found.",
		AddUsage:          "Usage: /add URL",
		Added:             "Subscribed to %s.",
		AddDuplicate:      "Already subscribed to %s.",
		AddInvalid:        "%s is not a valid http(s) URL.",
		TopicID:           "Topic ID: %d",
		TopicNone:         "This is not a forum topic.",
		LangCurrent:       "Current language: %s. Available: %s.",
		LangSet:           "Language set to English.",
		LangUnsupported:   "Unsupported language %q. Available: %s.",
		InternalError:     "Something went wrong. Please try again later.",
		InvalidNumber:     "%q is not a valid number.",
		ArchiveDisabled:   "The archive is not available.",
		SubscribeDisabled: "Subscribing is not available.",
	},
	Turkish: {
		MsgHeader:    "YENİ HABER BİLDİRİMİ",
		MsgSource:    "Kaynak",
		MsgTitle:     "Başlık",
		MsgSummary:   "Özet",
		MsgNoSummary: "Özet yok",
		MsgAnalysis:  "Analiz",
		MsgReadMore:  "Habere Git (Tıkla)",
		Started:      "🤖 feedbot başlatıldı! %d kaynaktan haberler takip ediliyor.",
		Help: `Komutlar:
/son [N]: arşivdeki son N haber
/ara KELİMELER: arşivde ara
/ekle URL: yeni kaynak ekle
/konu: bu forum konusunun kimliğini göster
/dil [en|tr]: dili göster veya değiştir`,
		LatestHeader:      "Son haberler:",
		SearchHeader:      "%q için sonuçlar:",
		SearchUsage:       "Kullanım: /ara KELİMELER",
		NothingFound:      "Sonuç bulunamadı.",
		AddUsage:          "Kullanım: /ekle URL",
		Added:             "%s eklendi.",
		AddDuplicate:      "%s zaten ekli.",
		AddInvalid:        "%s geçerli bir http(s) adresi değil.",
		TopicID:           "Konu kimliği: %d",
		TopicNone:         "Bu bir forum konusu değil.",
		LangCurrent:       "Geçerli dil: %s. Seçenekler: %s.",
		LangSet:           "Dil Türkçe olarak ayarlandı.",
		LangUnsupported:   "Desteklenmeyen dil %q. Seçenekler: %s.",
		InternalError:     "Bir hata oluştu. Lütfen daha sonra tekrar deneyin.",
		InvalidNumber:     "%q geçerli bir sayı değil.",
		ArchiveDisabled:   "Arşiv kullanılamıyor.",
		SubscribeDisabled: "Kaynak ekleme kullanılamıyor.",
	},
}

// T returns the string for key in lang, formatted with args. Unknown
// languages fall back to English.
func T(lang string, key Key, args ...any) string {
	s, ok := catalog[lang][key]
	if !ok {
		s = catalog[English][key]
	}
	if len(args) == 0 {
		return s
	}
	return fmt.Sprintf(s, args...)
}
