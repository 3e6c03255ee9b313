// pkg/models/outcome.go
package models

// CrawlOutcome classifies the result of a site crawl or of a single
// extraction step. Exactly one outcome is produced per attempt; at the
// orchestrator level it is terminal for the site.
type CrawlOutcome int

const (
	// OutcomeUnknown covers unaccounted-for errors. If this shows up in a
	// report, the classification tables need to be extended.
	OutcomeUnknown CrawlOutcome = -1

	// OutcomeSuccess means the pipeline ran and produced at least one record.
	OutcomeSuccess CrawlOutcome = 0
	// OutcomeConnFailed means the connection to the server could not be
	// established (DNS, refused, reset, timeout, redirect loop).
	OutcomeConnFailed CrawlOutcome = 1
	// OutcomeHTTPError means the server returned an HTTP error response.
	OutcomeHTTPError CrawlOutcome = 2
	// OutcomeParseError means expected data was missing from a retrieved file.
	OutcomeParseError CrawlOutcome = 3
	// OutcomeCMPNotFound means no consent management platform was found.
	OutcomeCMPNotFound CrawlOutcome = 4
	// OutcomeBotDetection means access was blocked by anti-bot measures.
	// Declared for reporting; no automatic classifier assigns it.
	OutcomeBotDetection CrawlOutcome = 5
	// OutcomeMalformedURL means the URL to browse was improperly formatted.
	OutcomeMalformedURL CrawlOutcome = 6
	// OutcomeSSLError means the TLS handshake or certificate was invalid.
	OutcomeSSLError CrawlOutcome = 7
	// OutcomeLibraryError means the CMP itself returned an error response.
	OutcomeLibraryError CrawlOutcome = 8
	// OutcomeRegionBlock means the CMP denied access based on IP region.
	OutcomeRegionBlock CrawlOutcome = 9
	// OutcomeMalformedResponse means a response was retrieved but did not
	// have the expected format.
	OutcomeMalformedResponse CrawlOutcome = 10
	// OutcomeNoCookies means the pipeline ran fully but the site had no
	// cookies recorded.
	OutcomeNoCookies CrawlOutcome = 11
	// OutcomeJSONDecodeError means a JSON document could not be decoded.
	OutcomeJSONDecodeError CrawlOutcome = 12
)

// AllOutcomes lists every outcome in report order, OutcomeUnknown last.
func AllOutcomes() []CrawlOutcome {
	return []CrawlOutcome{
		OutcomeSuccess,
		OutcomeConnFailed,
		OutcomeHTTPError,
		OutcomeParseError,
		OutcomeCMPNotFound,
		OutcomeBotDetection,
		OutcomeMalformedURL,
		OutcomeSSLError,
		OutcomeLibraryError,
		OutcomeRegionBlock,
		OutcomeMalformedResponse,
		OutcomeNoCookies,
		OutcomeJSONDecodeError,
		OutcomeUnknown,
	}
}

func (o CrawlOutcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "SUCCESS"
	case OutcomeConnFailed:
		return "CONN_FAILED"
	case OutcomeHTTPError:
		return "HTTP_ERROR"
	case OutcomeParseError:
		return "PARSE_ERROR"
	case OutcomeCMPNotFound:
		return "CMP_NOT_FOUND"
	case OutcomeBotDetection:
		return "BOT_DETECTION"
	case OutcomeMalformedURL:
		return "MALFORMED_URL"
	case OutcomeSSLError:
		return "SSL_ERROR"
	case OutcomeLibraryError:
		return "LIBRARY_ERROR"
	case OutcomeRegionBlock:
		return "REGION_BLOCK"
	case OutcomeMalformedResponse:
		return "MALFORMED_RESPONSE"
	case OutcomeNoCookies:
		return "NO_COOKIES"
	case OutcomeJSONDecodeError:
		return "JSON_DECODE_ERROR"
	default:
		return "UNKNOWN"
	}
}

// StatLabel returns the human-readable label used in the crawl statistics
// report for this outcome.
func (o CrawlOutcome) StatLabel() string {
	switch o {
	case OutcomeSuccess:
		return "Successful requests:"
	case OutcomeConnFailed:
		return "Failed to connect:"
	case OutcomeHTTPError:
		return "HTTP errors:"
	case OutcomeParseError:
		return "Website parse failures:"
	case OutcomeCMPNotFound:
		return "Consent Library not found:"
	case OutcomeBotDetection:
		return "Bot detection blocks:"
	case OutcomeMalformedURL:
		return "Malformed URL:"
	case OutcomeSSLError:
		return "SSL Errors:"
	case OutcomeLibraryError:
		return "Library Returned Error:"
	case OutcomeRegionBlock:
		return "Region Block Response:"
	case OutcomeMalformedResponse:
		return "Malformed Response:"
	case OutcomeNoCookies:
		return "No cookies recorded:"
	case OutcomeJSONDecodeError:
		return "JSON decode failures:"
	default:
		return "Unknown Errors:"
	}
}

// Describe returns a one-line description of the outcome for help output.
func (o CrawlOutcome) Describe() string {
	switch o {
	case OutcomeSuccess:
		return "extraction produced at least one cookie record"
	case OutcomeConnFailed:
		return "connection to the server could not be established"
	case OutcomeHTTPError:
		return "server returned an HTTP error response"
	case OutcomeParseError:
		return "expected data was missing from a retrieved file"
	case OutcomeCMPNotFound:
		return "no consent management platform found on the page"
	case OutcomeBotDetection:
		return "access blocked by anti-bot measures"
	case OutcomeMalformedURL:
		return "URL was improperly formatted"
	case OutcomeSSLError:
		return "TLS handshake or certificate failure"
	case OutcomeRegionBlock:
		return "consent provider denied access based on IP region"
	case OutcomeLibraryError:
		return "consent provider returned an error response"
	case OutcomeMalformedResponse:
		return "response did not have the expected format"
	case OutcomeNoCookies:
		return "no cookies recorded despite a correct response"
	case OutcomeJSONDecodeError:
		return "failed to decode a JSON document"
	default:
		return "unaccounted-for error"
	}
}
