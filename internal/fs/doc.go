// Package fs abstracts filesystem access for the disk cache tier so tests
// can inject write and read failures without touching a real disk error path.
package fs
