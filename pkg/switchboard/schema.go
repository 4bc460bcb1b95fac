package switchboard

import "fmt"

// Redis key pattern helpers
//
// All keys are namespaced by instance name to enable multiple switchboard
// instances to safely coexist on a single Redis server.
//
// Key pattern: switchboard:{instance_name}:{entity}[:{id}]

// QueueKey returns the Redis key for the shared job queue list.
// Pattern: switchboard:{instance_name}:queue
func QueueKey(instanceName string) string {
	return fmt.Sprintf("switchboard:%s:queue", instanceName)
}

// PendingKey returns the Redis key for a pending escalation hash.
// Pattern: switchboard:{instance_name}:pending:{handle}
func PendingKey(instanceName string, handle int64) string {
	return fmt.Sprintf("switchboard:%s:pending:%d", instanceName, handle)
}

// BufferKey returns the Redis key for a chat's group message buffer list.
// Pattern: switchboard:{instance_name}:buffer:{chat_id}
func BufferKey(instanceName string, chatID int64) string {
	return fmt.Sprintf("switchboard:%s:buffer:%d", instanceName, chatID)
}

// SeenKey returns the Redis key for a chat's seen-message dedup set.
// Pattern: switchboard:{instance_name}:seen:{chat_id}
func SeenKey(instanceName string, chatID int64) string {
	return fmt.Sprintf("switchboard:%s:seen:%d", instanceName, chatID)
}

// ChatRegistryKey returns the Redis key for the set of chat ids with a
// non-empty buffer.
// Pattern: switchboard:{instance_name}:group_chats
func ChatRegistryKey(instanceName string) string {
	return fmt.Sprintf("switchboard:%s:group_chats", instanceName)
}

// ThreadSessionKey returns the Redis key for a user's active thread session.
// Pattern: switchboard:{instance_name}:thread:{user_id}
func ThreadSessionKey(instanceName string, userID int64) string {
	return fmt.Sprintf("switchboard:%s:thread:%d", instanceName, userID)
}

// TranscriptKey returns the Redis key for a thread's agent transcript
// checkpoint.
// Pattern: switchboard:{instance_name}:transcript:{thread_id}
func TranscriptKey(instanceName, threadID string) string {
	return fmt.Sprintf("switchboard:%s:transcript:%s", instanceName, threadID)
}

// AwaitingKey returns the Redis key for a suspended conversation snapshot
// awaiting a human answer.
// Pattern: switchboard:{instance_name}:awaiting:{thread_id}
func AwaitingKey(instanceName, threadID string) string {
	return fmt.Sprintf("switchboard:%s:awaiting:%s", instanceName, threadID)
}
