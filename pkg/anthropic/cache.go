package anthropic

// BuildCachedSystemBlocks wraps a system prompt in a single block with a
// cache breakpoint. Extraction sends the same prompt for every document in
// a run, so later calls read it from the cache.
func BuildCachedSystemBlocks(text string, ttl string) []SystemBlock {
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: ttl},
		},
	}
}
