package kind

// T is the event kind. Only the kinds the client builds or reads are named
// here; any uint16 value is a valid kind on the wire.
type T uint16

func (ki T) ToInt() int       { return int(ki) }
func (ki T) ToUint16() uint16 { return uint16(ki) }

const (
	// ProfileMetadata carries a JSON object of profile fields in the content.
	ProfileMetadata T = 0
	SetMetadata     T = 0
	// TextNote is a short plain text note.
	TextNote T = 1
	// RecommendRelay suggests a relay url in its content.
	RecommendRelay T = 2
	// FollowList lists followed pubkeys as p tags.
	FollowList T = 3
	// EncryptedDirectMessage carries NIP-04 ciphertext addressed by a p tag.
	EncryptedDirectMessage T = 4
	Deletion               T = 5
	Repost                 T = 6
	Reaction               T = 7
)

var names = map[T]string{
	ProfileMetadata:        "ProfileMetadata",
	TextNote:               "TextNote",
	RecommendRelay:         "RecommendRelay",
	FollowList:             "FollowList",
	EncryptedDirectMessage: "EncryptedDirectMessage",
	Deletion:               "Deletion",
	Repost:                 "Repost",
	Reaction:               "Reaction",
}

// Name returns a readable name for known kinds and "unknown" otherwise.
func (ki T) Name() string {
	if s, ok := names[ki]; ok {
		return s
	}
	return "unknown"
}

// IsEphemeral reports kinds relays are not expected to store.
func (ki T) IsEphemeral() bool { return ki >= 20000 && ki < 30000 }

// IsReplaceable reports kinds where only the latest event per author counts.
func (ki T) IsReplaceable() bool {
	return ki == ProfileMetadata || ki == FollowList ||
		(ki >= 10000 && ki < 20000)
}
