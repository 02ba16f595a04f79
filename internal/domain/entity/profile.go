package entity

// Profile carries the display attributes of a participant. The messaging core
// does not own profile data; it only reads it from the external profile store
// when building conversation summaries.
type Profile struct {
	ID          string `json:"id" firestore:"id"`
	DisplayName string `json:"display_name" firestore:"displayName"`
	AvatarURL   string `json:"avatar_url,omitempty" firestore:"avatarUrl,omitempty"`
}
