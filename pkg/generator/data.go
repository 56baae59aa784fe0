package generator

// Word lists backing the built-in generators.

var firstNames = []string{"John", "Jane", "Michael", "Emma", "David", "Sarah", "Robert", "Lisa"}

var emailDomains = []string{"gmail.com", "yahoo.com", "outlook.com", "hotmail.com", "example.com"}

var emailUsernames = []string{"john.smith", "jane.doe", "mike.j", "emma.w", "david.brown", "sarah.m", "robert.j", "lisa.chen"}

var usStreets = []string{"Main St", "Oak Ave", "Pine Rd", "Maple Dr", "Cedar Ln", "Elm Ct", "Washington Blvd", "Park Ave"}

var usCities = []string{"New York", "Los Angeles", "Chicago", "Houston", "Phoenix", "Philadelphia", "San Antonio", "San Diego"}

var usStates = []string{"NY", "CA", "IL", "TX", "AZ", "PA", "FL", "GA"}

var intlStreets = []string{"Main", "First", "Second", "Third", "Fourth"}

var intlCities = []string{"London", "Paris", "Berlin", "Madrid", "Rome"}

var industries = []string{"Technology", "Finance", "Healthcare", "Education", "Retail", "Manufacturing"}

var companyPrefixes = []string{"Tech", "Global", "Innovate", "Advanced", "Digital", "Smart", "Quick", "Ultra"}

var companySuffixes = []string{"Solutions", "Systems", "Dynamics", "Labs", "Works", "Group", "Industries", "Corporation"}

var companySizes = []string{"Small", "Medium", "Large", "Enterprise"}

var urlTLDs = []string{"com", "org", "net", "io", "co", "app", "dev"}

var urlProtocols = []string{"https", "http"}

var urlSubdomains = []string{"www", "api", "app", "blog", "shop", "admin", "secure"}

var textWords = []string{
	"the", "be", "to", "of", "and", "a", "in", "that", "have", "I",
	"it", "for", "not", "on", "with", "he", "as", "you", "do", "at",
	"this", "but", "his", "by", "from", "is", "was", "are", "been", "has",
	"had", "were", "said", "did", "get", "may", "will", "make", "going", "can",
}

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

const placeholderImageBase = "https://via.placeholder.com/"
