package model

import "errors"

// ErrTemplateNotFound no active template exists for the key.
var ErrTemplateNotFound = errors.New("template not found")

// ErrNotificationNotFound no feed entry exists for the id.
var ErrNotificationNotFound = errors.New("notification not found")

// NoChannelSucceeded is the error message of a dispatch where every channel failed.
const NoChannelSucceeded = "No notification channels were successful"
