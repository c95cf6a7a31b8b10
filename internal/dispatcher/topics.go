package dispatcher

import "fmt"

// Topic names. Message and typing streams are per room; the room list is per
// user so membership changes reach exactly the affected members.
func RoomMessagesTopic(roomID int) string {
	return fmt.Sprintf("room.%d.messages", roomID)
}

func RoomTypingTopic(roomID int) string {
	return fmt.Sprintf("room.%d.typing", roomID)
}

func UserRoomsTopic(userID int) string {
	return fmt.Sprintf("rooms.%d", userID)
}
