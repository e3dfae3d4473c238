package db

// EventEmitter is an interface for emitting task events.
// This allows the DB to emit events without depending on the events package.
type EventEmitter interface {
	EmitTaskCreated(task *Task)
	EmitTaskUpdated(task *Task, changes map[string]interface{})
	EmitTaskDeleted(taskID string, title string)
	EmitAttachmentStatus(attachment *Attachment)
}

// SetEventEmitter sets the event emitter for this database.
func (db *DB) SetEventEmitter(emitter EventEmitter) {
	db.eventEmitter = emitter
}

func (db *DB) emitTaskCreated(task *Task) {
	if db.eventEmitter != nil {
		db.eventEmitter.EmitTaskCreated(task)
	}
}

func (db *DB) emitTaskUpdated(task *Task, changes map[string]interface{}) {
	if db.eventEmitter != nil {
		db.eventEmitter.EmitTaskUpdated(task, changes)
	}
}

func (db *DB) emitTaskDeleted(taskID string, title string) {
	if db.eventEmitter != nil {
		db.eventEmitter.EmitTaskDeleted(taskID, title)
	}
}

func (db *DB) emitAttachmentStatus(a *Attachment) {
	if db.eventEmitter != nil {
		db.eventEmitter.EmitAttachmentStatus(a)
	}
}
