package entity

import "time"

// Conversation is a unique thread between a client and a talent. The pair is
// unordered: (client, talent) and (talent, client) refer to the same row, and
// the durable store enforces at most one row per pair.
type Conversation struct {
	ID        string    `json:"id" firestore:"id"`
	ClientID  string    `json:"client_id" firestore:"clientId"`
	TalentID  string    `json:"talent_id" firestore:"talentId"`
	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updated_at" firestore:"updatedAt"`
}

// Involves reports whether userID is one of the two participants.
func (c *Conversation) Involves(userID string) bool {
	return c.ClientID == userID || c.TalentID == userID
}

// OtherParticipant returns the participant that is not userID.
func (c *Conversation) OtherParticipant(userID string) string {
	if c.ClientID == userID {
		return c.TalentID
	}
	return c.ClientID
}
