package types

type DialogName string

const (
	DialogAddQuestion     DialogName = "add_question"
	DialogBulkImport      DialogName = "bulk_import"
	DialogToggleQuestion  DialogName = "toggle_question"
	DialogGrantAdmin      DialogName = "grant_admin"
	DialogGrantUnlimited  DialogName = "grant_unlimited"
	DialogRevokeUnlimited DialogName = "revoke_unlimited"
	DialogSetTopic        DialogName = "set_topic"
	DialogSetDifficulty   DialogName = "set_difficulty"
	DialogAddTopic        DialogName = "add_topic"
)

const (
	CurrencyStars = "XTR"
	DailyLimit    = 10
	PackBonus     = 10
)
