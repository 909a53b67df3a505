package linguistic

var stopWords = toSet(
	"about", "above", "after", "again", "against", "all", "also", "and", "any", "are", "aren't", "because",
	"been", "before", "being", "below", "between", "both", "but", "can", "cannot", "could", "did", "didn't",
	"does", "doesn't", "doing", "don't", "down", "during", "each", "few", "for", "from", "further", "had",
	"has", "have", "having", "her", "here", "hers", "herself", "him", "himself", "his", "how", "i'm",
	"i've", "i'll", "into", "isn't", "it's", "its", "itself", "just", "let", "let's", "more", "most",
	"much", "must", "myself", "nor", "not", "now", "off", "once", "only", "other", "our", "ours",
	"ourselves", "out", "over", "own", "please", "same", "she", "should", "some", "such", "than", "thank",
	"thanks", "that", "that's", "the", "their", "theirs", "them", "themselves", "then", "there", "these",
	"they", "this", "those", "through", "too", "under", "until", "very", "was", "wasn't", "way", "well",
	"were", "what", "when", "where", "which", "while", "who", "whom", "why", "will", "with", "won't",
	"would", "you", "you're", "you've", "your", "yours", "yourself", "yourselves", "hello", "regards",
	"best", "dear", "get", "got", "one", "may", "might", "like", "see", "know", "need", "want", "make",
	"new", "use", "via", "etc", "http", "https", "www", "com",
)

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		set[word] = struct{}{}
	}
	return set
}
