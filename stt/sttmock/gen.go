package sttmock

//go:generate mockgen --destination=provider.mock.go --package=sttmock github.com/mrsingh-rishi/transcriber/stt Provider
