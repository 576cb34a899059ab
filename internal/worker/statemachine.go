package worker

import (
	"context"
	"strings"

	"github.com/botforge/botforge/internal/domain"
)

// userState is derived from the persisted record: a user with no language
// choice is still in the one-time language prompt.
type userState int

const (
	stateLanguageSelect userState = iota
	stateMenu
)

func stateOf(user *domain.EndUser) userState {
	if user.Language == domain.LanguageUnset {
		return stateLanguageSelect
	}
	return stateMenu
}

type inputClass int

const (
	inputUnknown inputClass = iota
	inputStart
	inputLangUzbek
	inputLangRussian
	inputProfile
	inputStats
	inputSettings
	inputHelp
	inputSupport
	inputAdminUsers
	inputAdminBroadcast
	inputAdminStats
)

// classify maps raw text to an input class. Admin classes only exist for the
// owner; for everyone else those commands fall through to unknown.
func classify(text string, fromOwner bool) inputClass {
	text = strings.TrimSpace(text)

	if fromOwner {
		switch {
		case text == "/users":
			return inputAdminUsers
		case text == "/stats":
			return inputAdminStats
		case strings.HasPrefix(text, "/broadcast"):
			return inputAdminBroadcast
		}
	}

	switch text {
	case "/start":
		return inputStart
	case buttonUzbek:
		return inputLangUzbek
	case buttonRussian:
		return inputLangRussian
	case buttonProfileUz, buttonProfileRu:
		return inputProfile
	case buttonStatsUz, buttonStatsRu:
		return inputStats
	case buttonSettingsUz, buttonSettingsRu:
		return inputSettings
	case buttonHelpUz, buttonHelpRu:
		return inputHelp
	case buttonSupportUz, buttonSupportRu:
		return inputSupport
	}
	return inputUnknown
}

type actionFunc func(ctx context.Context, user *domain.EndUser, update domain.BotUpdate) error

// transitions is the explicit (state, input) dispatch table. Missing entries
// fall back to the state's default action.
func (r *Runtime) transitions() map[userState]map[inputClass]actionFunc {
	return map[userState]map[inputClass]actionFunc{
		stateLanguageSelect: {
			inputLangUzbek:   r.actSetLanguage(domain.LanguageUzbek),
			inputLangRussian: r.actSetLanguage(domain.LanguageRussian),
		},
		stateMenu: {
			inputStart:          r.actShowMenu,
			inputLangUzbek:      r.actSetLanguage(domain.LanguageUzbek),
			inputLangRussian:    r.actSetLanguage(domain.LanguageRussian),
			inputProfile:        r.actProfile,
			inputStats:          r.actStats,
			inputSettings:       r.actSettings,
			inputHelp:           r.actHelp,
			inputSupport:        r.actSupport,
			inputAdminUsers:     r.actAdminUsers,
			inputAdminBroadcast: r.actAdminBroadcast,
			inputAdminStats:     r.actAdminStats,
		},
	}
}

// defaults per state: re-prompt for language, or the unknown-input nudge.
func (r *Runtime) defaultAction(state userState) actionFunc {
	if state == stateLanguageSelect {
		return r.actPromptLanguage
	}
	return r.actUnknown
}

// dispatch routes one update through the table.
func (r *Runtime) dispatch(ctx context.Context, user *domain.EndUser, update domain.BotUpdate) error {
	state := stateOf(user)
	input := classify(update.Text, update.UserID == r.bot.OwnerID)

	if action, ok := r.table[state][input]; ok {
		return action(ctx, user, update)
	}
	return r.defaultAction(state)(ctx, user, update)
}
