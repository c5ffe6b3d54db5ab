package api

const (
	// Lobbies (zawomons-gt)
	LobbiesEndpoint     = "/zawomons-gt/lobbies/"
	CreateLobbyEndpoint = "/zawomons-gt/lobbies/create_lobby/"
	lobbyDetailFormat   = "/zawomons-gt/lobbies/%s/"
	lobbyActionFormat   = "/zawomons-gt/lobbies/%s/%s/"

	ActionJoin           = "join"
	ActionStart          = "start"
	ActionLeave          = "leave"
	ActionUpdateSettings = "update_settings"

	// Users
	MeEndpoint = "/users/me/"

	// Zawomons player data
	PlayerDataEndpoint = "/games/zawomons/player-data/"
	PlayersEndpoint    = "/games/zawomons/players/"
	SaveDataEndpoint   = "/games/zawomons/save-data/"
)
