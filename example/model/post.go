package model

type Post struct {
	ID        int
	UserID    int
	Title     string
	Published bool
}

// ArchiveStore holds comments, apart from users and posts.
const ArchiveStore = "archive"

type Comment struct {
	ID     int
	UserID int
	Body   string
}

func (Comment) StoreName() string { return ArchiveStore }
