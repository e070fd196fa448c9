package prompt

// Message kinds shown to users.
const (
	MsgNoAPIKey        = "no_api_key"
	MsgSQLError        = "sql_error"
	MsgEmptyResult     = "empty_result"
	MsgQueryGenerated  = "query_generated"
	MsgDataFound       = "data_found"
	MsgGeographicMatch = "geographic_match"
)

var errorMessages = map[string]string{
	MsgNoAPIKey:    "OpenAI API key mangler. Systemet kører i demo mode.",
	MsgSQLError:    "Der opstod en fejl i SQL udførelsen. Prøv at omformulere spørgsmålet.",
	MsgEmptyResult: "Ingen data fundet for denne forespørgsel. Prøv andre søgekriterier.",
}

var successMessages = map[string]string{
	MsgQueryGenerated:  "📝 Genereret SQL:",
	MsgDataFound:       "✅ Data hentet succesfuldt",
	MsgGeographicMatch: "🗺️ Geografisk søgning anvendt",
}

// ErrorMessage returns the Danish text for an error kind.
func ErrorMessage(kind string) string {
	if msg, ok := errorMessages[kind]; ok {
		return msg
	}
	return "Der opstod en uventet fejl."
}

func SuccessMessage(kind string) string {
	if msg, ok := successMessages[kind]; ok {
		return msg
	}
	return "✅ Handling fuldført"
}
