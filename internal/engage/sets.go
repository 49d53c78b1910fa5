package engage

import "example.com/socialfeed/internal/models"

// toggleLike treats likes as a set keyed by user id. It returns a new slice
// and whether userID likes the post afterwards.
func toggleLike(likes []models.Like, userID string) ([]models.Like, bool) {
	out := make([]models.Like, 0, len(likes)+1)
	found := false
	for _, l := range likes {
		if l.UserID == userID {
			found = true
			continue
		}
		out = append(out, l)
	}
	if found {
		return out, false
	}
	return append([]models.Like{{UserID: userID}}, out...), true
}

func findComment(comments []models.Comment, id string) int {
	for i, c := range comments {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// removeComment drops the comment with the given id, keeping order.
func removeComment(comments []models.Comment, id string) []models.Comment {
	out := make([]models.Comment, 0, len(comments))
	for _, c := range comments {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}
