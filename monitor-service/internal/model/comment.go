package model

import "time"

type Comment struct {
	ID        int64          `json:"id"`
	ProjectID int64          `json:"project_id"`
	AuthorID  int64          `json:"author_id"`
	Body      string         `json:"body"`
	CreatedAt time.Time      `json:"created_at"`
	Author    *CommentAuthor `json:"author"`
}

type CommentAuthor struct {
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`
}
