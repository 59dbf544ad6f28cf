package domain

// BuildCallbackKey constructs the cache key remembering a processed provider callback.
func BuildCallbackKey(provider, providerTxID string) string {
	return "callback:" + provider + ":" + providerTxID
}

// BuildNonceKey namespaces a signed internal request nonce by the caller's access key.
func BuildNonceKey(accessKey, nonce string) string {
	return accessKey + ":" + nonce
}
