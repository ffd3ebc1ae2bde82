package mesh

// Action identifies the operation requested by a frame.
type Action string

const (
	// ActionRegisterNewServer asks the receiver to add the sender to its
	// membership table. Payload is the sender's advertised Address.
	ActionRegisterNewServer Action = "RegisterNewServer"

	// ActionGetNodeList asks the receiver for a snapshot of its membership
	// table. The reply payload is a NodeList keyed by peer token.
	ActionGetNodeList Action = "GetNodeList"

	// ActionSaveCacheEntry pushes a cache entry for local storage without
	// further replication. Payload is a SaveCacheEntryPayload.
	ActionSaveCacheEntry Action = "SaveCacheEntry"

	// ActionOk is the acknowledgement sent in reply to every frame,
	// including ones carrying an unrecognized action.
	ActionOk Action = "Ok."
)
