package domain

// DefaultUsername is used until the client sends Connect.
const DefaultUsername = "guest"

// Member represents a connected user's meta.
// No transport or lifecycle logic here.
type Member struct {
	ID       SessionID `json:"id"`
	Username string    `json:"username"`
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(id SessionID, username string) *Member {
	if username == "" {
		username = DefaultUsername
	}
	return &Member{ID: id, Username: username}
}

func (m *Member) SetUsername(username string) error {
	if err := ValidateUsername(username); err != nil {
		return err
	}
	m.Username = username
	return nil
}
