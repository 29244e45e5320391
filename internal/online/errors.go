package online

// RoomError is a room operation failure with a message fit for the status line.
type RoomError struct {
	Code    int
	Message string
}

func (e *RoomError) Error() string {
	return e.Message
}

const (
	CodeRoomNotFound = 1001
	CodeRoomFull     = 1002
	CodeJoinFailed   = 1003
)

var (
	ErrRoomNotFound = &RoomError{Code: CodeRoomNotFound, Message: "Game not found"}
	ErrRoomFull     = &RoomError{Code: CodeRoomFull, Message: "Room already has two players"}
	ErrJoinFailed   = &RoomError{Code: CodeJoinFailed, Message: "Unable to join room"}
)
