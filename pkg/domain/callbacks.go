package domain

// StreamCallbacks is the contract an answer turn reports through. OnChunk may
// fire any number of times between OnSources and exactly one terminal
// callback, OnComplete or OnError.
type StreamCallbacks struct {
	OnStart    func()
	OnSources  func(result SearchResult)
	OnChunk    func(fragment string)
	OnComplete func(fullText string)
	OnError    func(err error)
}
