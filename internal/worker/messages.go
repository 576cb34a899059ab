package worker

import "github.com/botforge/botforge/internal/domain"

// Button labels double as input matchers, so they live next to the texts.
const (
	buttonUzbek   = "🇺🇿 O'zbekcha"
	buttonRussian = "🇷🇺 Русский"

	buttonProfileUz  = "👤 Profil"
	buttonStatsUz    = "📊 Statistika"
	buttonSettingsUz = "⚙️ Sozlamalar"
	buttonHelpUz     = "ℹ️ Yordam"
	buttonSupportUz  = "📞 Aloqa"

	buttonProfileRu  = "👤 Профиль"
	buttonStatsRu    = "📊 Статистика"
	buttonSettingsRu = "⚙️ Настройки"
	buttonHelpRu     = "ℹ️ Помощь"
	buttonSupportRu  = "📞 Связь"
)

var languageKeyboard = [][]string{{buttonUzbek, buttonRussian}}

var menuKeyboards = map[domain.Language][][]string{
	domain.LanguageUzbek: {
		{buttonProfileUz, buttonStatsUz},
		{buttonSettingsUz, buttonHelpUz},
		{buttonSupportUz},
	},
	domain.LanguageRussian: {
		{buttonProfileRu, buttonStatsRu},
		{buttonSettingsRu, buttonHelpRu},
		{buttonSupportRu},
	},
}

var texts = map[domain.Language]map[string]string{
	domain.LanguageUzbek: {
		"welcome":  "Xush kelibsiz! Quyidagi menyudan foydalaning:",
		"menu":     "Asosiy menyu:",
		"profile":  "👤 Sizning profilingiz:\nIsm: %s\nUsername: @%s\nQo'shilgan sana: %s",
		"stats":    "📊 Sizning statistikangiz:\nXabarlar soni: %d\nQo'shilgan sana: %s",
		"settings": "⚙️ Tilni tanlang:",
		"help":     "ℹ️ Bu bot BotForge platformasida yaratilgan.\nMenyu tugmalaridan foydalaning.",
		"support":  "📞 Savollar bo'lsa, bot egasiga murojaat qiling.",
		"unknown":  "Iltimos, menyudagi tugmalardan foydalaning.",
	},
	domain.LanguageRussian: {
		"welcome":  "Добро пожаловать! Используйте меню ниже:",
		"menu":     "Главное меню:",
		"profile":  "👤 Ваш профиль:\nИмя: %s\nUsername: @%s\nДата регистрации: %s",
		"stats":    "📊 Ваша статистика:\nСообщений: %d\nДата регистрации: %s",
		"settings": "⚙️ Выберите язык:",
		"help":     "ℹ️ Этот бот создан на платформе BotForge.\nИспользуйте кнопки меню.",
		"support":  "📞 По вопросам обращайтесь к владельцу бота.",
		"unknown":  "Пожалуйста, используйте кнопки меню.",
	},
}

// The language prompt renders in both languages since none is chosen yet.
const languagePrompt = "Tilni tanlang / Выберите язык:"

func text(lang domain.Language, key string) string {
	table, ok := texts[lang]
	if !ok {
		table = texts[domain.LanguageUzbek]
	}
	return table[key]
}

func menuKeyboard(lang domain.Language) [][]string {
	kb, ok := menuKeyboards[lang]
	if !ok {
		return menuKeyboards[domain.LanguageUzbek]
	}
	return kb
}
