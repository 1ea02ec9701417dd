package repos

import "github.com/google/uuid"

// OutboxNamespace is the UUID V5 namespace for outbox events.
// Generated via: uuid_generate_v5('6ba7b811-9dad-11d1-80b4-00c04fd430c8', 'svc-event-bus:outbox')
var OutboxNamespace = uuid.MustParse("19f725c4-b5f5-5e90-ad91-fa265f1c97dd")
