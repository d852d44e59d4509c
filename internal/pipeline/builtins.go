package pipeline

// Builtin compiles the standard pipeline set. The tables below are tuned for
// UAE card pages; banks name the same benefits in near-identical phrasing,
// which is what keeps a pattern pass worthwhile next to the model pass.
func Builtin() (*Registry, error) {
	return NewRegistry(
		cashbackSpec,
		loungeSpec,
		golfSpec,
		diningSpec,
		travelSpec,
		insuranceSpec,
		feeWaiverSpec,
		rewardsSpec,
		movieSpec,
		lifestyleSpec,
	)
}

var cashbackSpec = Spec{
	Name:        "cashback",
	BenefitType: "cashback",
	Description: "Cashback rates, categories, caps, and conditions",
	URLPatterns: []string{
		"cashback", "cash-back", "rebate", "rewards-cashback",
		"earn-back", "money-back",
	},
	Keywords: []string{
		"cashback", "cash back", "cash-back",
		"earn back", "money back",
		"rebate", "refund",
		"return", "savings",
		"%", "percent",
		"grocery", "groceries", "supermarket",
		"dining", "restaurant", "food",
		"fuel", "petrol", "gas station",
		"shopping", "retail", "online",
		"travel", "airline", "hotel",
		"utility", "utilities", "bills",
		"education", "school", "tuition",
		"healthcare", "medical", "pharmacy",
	},
	NegativeKeywords: []string{
		"no cashback",
		"cashback not applicable",
		"excluded from cashback",
	},
	Patterns: map[string]string{
		"percentage_cashback": `(?P<value>\d+(?:\.\d+)?)\s*%\s*(?:cash\s*back|cashback|cb)\s*(?:on|for|at)?\s*(?P<category>[a-zA-Z\s]{3,30})?`,
		"cashback_of":         `(?:cash\s*back|cashback)\s*(?:of|up to|upto)?\s*(?P<value>\d+(?:\.\d+)?)\s*%`,
		"earn_percentage":     `earn\s*(?:up to|upto)?\s*(?P<value>\d+(?:\.\d+)?)\s*%\s*(?:cash\s*back|cashback|cb)?\s*(?:on|for|at)?\s*(?P<category>[a-zA-Z\s]{3,30})?`,
		"fixed_cashback":      `(?:aed|usd|eur|\$)\s*(?P<value>\d+(?:,\d{3})*(?:\.\d{2})?)\s*(?:cash\s*back|cashback)`,
		"cashback_cap":        `(?:up to|upto|maximum|max|capped at)\s*(?:aed|usd|\$)?\s*(?P<value>\d+(?:,\d{3})*(?:\.\d{2})?)\s*(?:cash\s*back|cashback|per month|monthly|per year|annually)`,
		"minimum_spend":       `(?:minimum|min)\s*(?:spend|spending|purchase)\s*(?:of|:)?\s*(?:aed|usd|\$)?\s*(?P<value>\d+(?:,\d{3})*(?:\.\d{2})?)`,
	},
	CategoryMap: map[string][]string{
		"grocery":       {"grocery", "groceries", "supermarket", "hypermarket", "carrefour", "lulu"},
		"dining":        {"dining", "restaurant", "food", "cafe", "coffee", "eat"},
		"fuel":          {"fuel", "petrol", "gas", "gas station", "filling station", "adnoc", "enoc"},
		"travel":        {"travel", "airline", "hotel", "booking", "flight", "emirates", "etihad"},
		"shopping":      {"shopping", "retail", "online", "e-commerce", "ecommerce", "amazon", "noon"},
		"utilities":     {"utility", "utilities", "bills", "electricity", "water", "telecom", "dewa", "du", "etisalat"},
		"education":     {"education", "school", "tuition", "university", "college"},
		"healthcare":    {"healthcare", "medical", "pharmacy", "hospital", "clinic"},
		"entertainment": {"entertainment", "cinema", "movies", "streaming", "netflix"},
		"international": {"international", "overseas", "foreign", "abroad"},
	},
	PromptIntro: "Analyze the credit card content and extract ALL cashback benefits: rates, eligible categories, caps, and minimum spend requirements.",
}

var loungeSpec = Spec{
	Name:        "lounge_access",
	BenefitType: "lounge_access",
	Description: "Airport lounge access, visits, networks, and conditions",
	URLPatterns: []string{
		"lounge", "airport-lounge", "priority-pass", "lounge-key",
		"dragonpass", "plaza-premium", "marhaba", "ahlan",
	},
	Keywords: []string{
		"lounge", "lounges", "lounge access",
		"airport lounge", "airport lounges",
		"priority pass", "prioritypass",
		"lounge key", "loungekey",
		"dragon pass", "dragonpass",
		"plaza premium", "marhaba",
		"business lounge", "first class lounge",
		"complimentary access", "free access",
		"visits per year", "annual visits",
		"guest access", "accompanying guest",
	},
	NegativeKeywords: []string{
		"no lounge access",
		"lounge not included",
	},
	Patterns: map[string]string{
		"complimentary_visits": `(?P<value>\d+)\s*(?:complimentary|free|unlimited)?\s*(?:airport)?\s*lounge\s*(?:visits?|access(?:es)?)`,
		"visits_per_year":      `lounge\s*access\s*(?P<value>\d+)\s*(?:times?|visits?)\s*(?:per|a|each)\s*year`,
		"unlimited_access":     `unlimited\s*(?:airport)?\s*lounge\s*(?:access|visits?)`,
		"priority_pass":        `priority\s*pass\s*(?:select|prestige|standard)?(?:\s*membership)?`,
		"lounge_key":           `lounge\s*key\s*(?:access|membership)?`,
		"guest_policy":         `(?P<value>\d+)\s*(?:complimentary|free)?\s*guest(?:s)?\s*(?:per visit|included|allowed)`,
		"visit_fee":            `(?:aed|usd|\$)\s*(?P<value>\d+(?:\.\d{2})?)\s*per\s*(?:visit|entry|access)`,
	},
	MerchantMap: map[string][]string{
		"Priority Pass": {"priority pass", "prioritypass"},
		"LoungeKey":     {"lounge key", "loungekey"},
		"DragonPass":    {"dragon pass", "dragonpass"},
		"Plaza Premium": {"plaza premium"},
		"Marhaba":       {"marhaba"},
		"Diners Club":   {"diners club lounge"},
	},
	PromptIntro: "Analyze the credit card content and extract ALL airport lounge benefits: visit counts, lounge networks, guest policy, and per-visit fees.",
}

var golfSpec = Spec{
	Name:        "golf",
	BenefitType: "golf",
	Description: "Golf privileges, courses, fees, and booking details",
	URLPatterns: []string{
		"golf", "golfing", "tee-time", "green-fee", "driving-range",
		"golf-course", "golf-club", "golf-privilege",
	},
	Keywords: []string{
		"golf", "golfing", "golf course", "golf courses",
		"golf club", "golf clubs", "golf session", "golf sessions",
		"complimentary golf", "free golf", "golf privileges",
		"golf access", "golf benefit", "golf benefits",
		"tee time", "tee times", "golf booking",
		"golf discount", "golf offer", "golf offers",
		"golf cart", "golf equipment",
		"driving range", "practice range",
		"green fee", "greens fee",
	},
	NegativeKeywords: []string{
		"no golf",
		"golf not included",
		"golf excluded",
	},
	Patterns: map[string]string{
		"complimentary_golf":    `(?:complimentary|free|no\s+charge)\s+(?:golf\s+)?(?:access|session|round|tee\s+time|green\s*fee)`,
		"free_golf_sessions":    `(?P<value>\d+)\s+(?:complimentary|free)\s+(?:golf\s+)?(?:sessions?|rounds?|visits?)`,
		"access_per_month":      `(?P<value>\d+)\s*(?:times?|sessions?|rounds?|visits?)\s*(?:per|a|each|every)\s*month`,
		"access_per_year":       `(?P<value>\d+)\s*(?:times?|sessions?|rounds?|visits?)\s*(?:per|a|each|every)\s*year`,
		"golf_discount":         `(?P<value>\d+)\s*%\s*(?:discount|off)\s*(?:on\s+)?(?:golf|green\s*fee)`,
		"minimum_spend":         `(?:minimum|min\.?)\s*(?:monthly\s*)?spend[:\s]*(?:of\s*)?(?:aed\s*)?(?P<value>[\d,]+(?:\.\d{2})?)`,
		"booking_required":      `(?:advance\s*)?(?:booking|reservation)\s*(?:is\s*)?(?:required|mandatory|necessary)`,
		"registration_required": `(?:card\s*)?registration\s*(?:is\s*)?(?:required|mandatory|necessary)`,
	},
	MerchantMap: map[string][]string{
		"Jebel Ali Golf Club":       {"jebel ali golf", "jebel ali"},
		"Arabian Ranches Golf Club": {"arabian ranches"},
		"The Track, Meydan Golf":    {"meydan golf", "track, meydan", "track meydan"},
		"Abu Dhabi City Golf Club":  {"abu dhabi city golf"},
		"Abu Dhabi Golf Club":       {"abu dhabi golf club"},
		"Sharjah Golf & Shooting":   {"sharjah golf"},
		"Emirates Golf Club":        {"emirates golf"},
		"Dubai Creek Golf & Yacht":  {"dubai creek golf"},
		"Jumeirah Golf Estates":     {"jumeirah golf"},
		"Al Hamra Golf Club":        {"al hamra golf"},
		"Yas Links Abu Dhabi":       {"yas links"},
		"Saadiyat Beach Golf Club":  {"saadiyat beach golf", "saadiyat golf"},
		"The Els Club":              {"els club"},
		"The Montgomerie Golf Club": {"montgomerie"},
	},
	PromptIntro: "Analyze the credit card content and extract ALL golf benefits: complimentary sessions, eligible courses, booking requirements, and fees.",
}

var diningSpec = Spec{
	Name:        "dining",
	BenefitType: "dining",
	Description: "Dining discounts, BOGO offers, and memberships",
	URLPatterns: []string{
		"dining", "restaurant", "food", "entertainer", "zomato",
		"bogo", "fine-dining", "meal", "culinary",
	},
	Keywords: []string{
		"dining", "restaurant", "food", "meal",
		"entertainer", "zomato", "talabat",
		"buy one get one", "bogo", "2 for 1",
		"fine dining", "discount", "complimentary",
	},
	Patterns: map[string]string{
		"dining_discount": `(?P<value>\d+)\s*%\s*(?:off|discount)\s*(?:on|at)?\s*(?:dining|restaurant|food)`,
		"bogo":            `(?:buy\s*(?:one|1)\s*get\s*(?:one|1)|bogo|2\s*for\s*1)`,
		"entertainer":     `(?:the\s*)?entertainer\s*(?:membership|app)?`,
	},
	MerchantMap: map[string][]string{
		"The Entertainer": {"entertainer"},
		"Zomato":          {"zomato"},
		"Talabat":         {"talabat"},
	},
	PromptIntro: "Analyze the credit card content and extract ALL dining benefits: discounts, buy-one-get-one offers, and dining memberships.",
}

var travelSpec = Spec{
	Name:        "travel_benefits",
	BenefitType: "travel",
	Description: "Travel insurance, transfers, hotel and parking privileges",
	URLPatterns: []string{
		"travel", "airport-transfer", "limousine", "chauffeur",
		"hotel", "flight", "baggage", "trip", "vacation",
	},
	Keywords: []string{
		"travel", "trip", "travel insurance",
		"flight delay", "baggage", "lost baggage",
		"airport transfer", "limousine", "chauffeur",
		"hotel", "upgrade", "complimentary night",
		"car rental", "valet parking", "fast track",
		"visa", "concierge",
	},
	Patterns: map[string]string{
		"travel_insurance": `travel\s*insurance\s*(?:up to)?\s*(?:aed|usd|\$)?\s*(?P<value>\d+(?:,\d{3})*)?`,
		"flight_delay":     `flight\s*delay\s*(?:cover|compensation)?\s*(?:aed|usd|\$)?\s*(?P<value>\d+(?:,\d{3})*)?`,
		"airport_transfer": `(?:complimentary|free)\s*(?:airport)?\s*(?:transfer|limousine)`,
		"valet_parking":    `(?:complimentary|free)\s*valet\s*parking`,
	},
	PromptIntro: "Analyze the credit card content and extract ALL travel benefits: insurance cover, airport transfers, hotel privileges, car rental, and parking.",
}

var insuranceSpec = Spec{
	Name:        "insurance",
	BenefitType: "insurance",
	Description: "Purchase protection, warranties, and liability cover",
	URLPatterns: []string{
		"insurance", "protection", "warranty", "coverage",
		"fraud-protection", "purchase-protection", "liability",
	},
	Keywords: []string{
		"insurance", "protection", "coverage",
		"purchase protection", "buyer protection",
		"extended warranty", "warranty extension",
		"fraud protection", "zero liability",
		"personal accident", "life insurance",
		"medical", "health insurance",
	},
	Patterns: map[string]string{
		"purchase_protection": `purchase\s*protection\s*(?:up to|upto)?\s*(?:aed|usd|\$)?\s*(?P<value>\d+(?:,\d{3})*)?`,
		"extended_warranty":   `extended\s*warranty\s*(?:of|up to|for)?\s*(?P<value>\d+)\s*(?:months?|years?)?`,
		"fraud_protection":    `(?:zero|no)\s*liability\s*(?:on)?\s*(?:fraud|unauthorized)`,
	},
	PromptIntro: "Analyze the credit card content and extract ALL insurance and protection benefits: coverage types, amounts, and conditions.",
}

var feeWaiverSpec = Spec{
	Name:        "fee_waiver",
	BenefitType: "fee_waiver",
	Description: "Annual fee waivers, forex markup, and fee conditions",
	URLPatterns: []string{
		"fee-waiver", "annual-fee", "joining-fee", "forex",
		"free-for-life", "zero-fee", "fee-reversal",
	},
	Keywords: []string{
		"fee waiver", "waived", "no fee", "zero fee",
		"annual fee", "joining fee", "membership fee",
		"forex", "foreign exchange", "currency conversion",
		"free for life", "lifetime free",
		"first year free", "complimentary",
	},
	Patterns: map[string]string{
		"annual_fee_waiver": `(?:annual|yearly)\s*fee\s*(?:waived?|free|zero|no)`,
		"forex_waiver":      `(?:no|zero|0%?)\s*(?:forex|foreign exchange|currency conversion)\s*(?:fee|charge|markup)`,
		"lifetime_free":     `(?:free for life|lifetime free|life long free)`,
		"first_year_free":   `(?:first year free|year 1 free|joining fee waived)`,
		"annual_fee_amount": `annual\s*fee\s*(?:of|:)?\s*(?:aed|usd|\$)?\s*(?P<value>\d+(?:,\d{3})*)`,
	},
	PromptIntro: "Analyze the credit card content and extract ALL fee waivers and fee benefits: annual fee, joining fee, forex markup, and waiver conditions.",
}

var rewardsSpec = Spec{
	Name:        "rewards_points",
	BenefitType: "rewards_points",
	Description: "Points earning rates, multipliers, and redemption",
	URLPatterns: []string{
		"rewards", "points", "miles", "skywards", "bonus-points",
		"earning-rate", "redemption", "loyalty",
	},
	Keywords: []string{
		"points", "reward points", "rewards",
		"earn points", "earning rate",
		"bonus points", "extra points",
		"miles", "air miles", "skywards",
		"etihad guest", "emirates skywards",
		"marriott bonvoy", "hilton honors",
		"multiply points", "double points", "triple points",
		"points per", "miles per",
		"redemption", "redeem points",
	},
	Patterns: map[string]string{
		"points_per_spend": `(?P<value>\d+)\s*(?:reward)?\s*points?\s*(?:per|for every)\s*(?:aed|usd|\$)?\s*\d+`,
		"earn_points":      `earn\s*(?:up to)?\s*(?P<value>\d+(?:,\d{3})*)\s*(?:bonus|reward)?\s*points?`,
		"miles_per_spend":  `(?P<value>\d+)\s*(?:air)?\s*miles?\s*(?:per|for every)\s*(?:aed|usd|\$)?\s*\d+`,
		"multiplier":       `(?P<value>double|triple|2x|3x|4x|5x|10x)\s*(?:the)?\s*(?:reward)?\s*points?`,
		"skywards":         `emirates\s*skywards?\s*(?:miles?)?`,
	},
	PromptIntro: "Analyze the credit card content and extract ALL rewards points and miles benefits: earning rates, multipliers, bonus points, and redemption options.",
}

var movieSpec = Spec{
	Name:        "movie",
	BenefitType: "movie",
	Description: "Movie tickets, cinema chains, and companion offers",
	URLPatterns: []string{
		"movie", "cinema", "film", "cine-royal", "cinestar",
		"vox-cinema", "reel-cinema", "novo-cinema", "imax",
		"entertainment", "ticket",
	},
	Keywords: []string{
		"movie", "movies", "cinema", "cinemas", "film", "films",
		"movie ticket", "movie tickets", "cinema ticket", "cinema tickets",
		"free movie", "free movies", "complimentary movie", "complimentary ticket",
		"buy one get one", "bogo", "buy 1 get 1",
		"2d", "3d", "imax", "vip", "4dx", "screenx", "dolby",
		"vox", "vox cinemas", "reel", "reel cinemas",
		"novo", "novo cinemas", "cine royal", "cinestar",
		"oscar", "star cinemas", "cinemacity",
		"movie benefit", "cinema benefit", "movie offer",
		"companion ticket", "guest ticket", "bring a friend",
	},
	NegativeKeywords: []string{
		"no movie",
		"movie not included",
		"cinema excluded",
		"movies excluded",
	},
	Patterns: map[string]string{
		"free_tickets":      `(?P<value>\d+)\s*(?:free|complimentary)\s*(?:movie\s*)?tickets?`,
		"tickets_per_month": `(?P<value>\d+)\s*(?:movie\s*)?tickets?\s*(?:per|a|each|every)\s*month`,
		"tickets_per_week":  `(?P<value>\d+)\s*(?:movie\s*)?tickets?\s*(?:per|a|each|every)\s*week`,
		"buy_one_get_one":   `buy\s*(?:one|1)\s*get\s*(?:one|1)(?:\s*free)?`,
		"companion_ticket":  `(?:companion|guest|additional)\s*ticket`,
	},
	MerchantMap: map[string][]string{
		"VOX Cinemas":  {"vox cinema", "vox"},
		"Reel Cinemas": {"reel cinema", "reel"},
		"Novo Cinemas": {"novo cinema", "novo"},
		"Cine Royal":   {"cine royal"},
		"CineStar":     {"cinestar"},
		"Oscar Cinema": {"oscar cinema"},
		"Star Cinemas": {"star cinemas"},
	},
	PromptIntro: "Analyze the credit card content and extract ALL movie and cinema benefits: free tickets, eligible chains, ticket types, and companion offers.",
}

var lifestyleSpec = Spec{
	Name:        "lifestyle",
	BenefitType: "lifestyle",
	Description: "Spa, fitness, events, and other lifestyle privileges",
	URLPatterns: []string{
		"spa", "fitness", "gym", "wellness", "health-club",
		"concert", "event", "lifestyle", "valet",
	},
	Keywords: []string{
		"golf", "spa", "fitness", "gym",
		"movie", "cinema", "entertainment",
		"concert", "event", "tickets",
		"wellness", "health club",
		"shopping", "retail", "discount",
		"lifestyle", "exclusive",
	},
	Patterns: map[string]string{
		"golf":     `(?:complimentary|free)\s*golf\s*(?:access|rounds?|green fees?)`,
		"spa":      `(?:complimentary|free)\s*spa\s*(?:access|treatment|session)`,
		"gym":      `(?:complimentary|free)\s*(?:gym|fitness)\s*(?:membership|access)`,
		"movie":    `(?:complimentary|free)\s*(?:movie|cinema)\s*tickets?\s*(?P<value>\d+)?`,
		"discount": `(?P<value>\d+)\s*%\s*(?:off|discount)\s*(?:on|at)\s*(?P<category>[a-zA-Z\s]{3,30})`,
	},
	CategoryMap: map[string][]string{
		"golf":          {"golf"},
		"spa":           {"spa", "wellness", "massage"},
		"fitness":       {"gym", "fitness", "health club"},
		"entertainment": {"movie", "cinema", "concert", "event"},
		"shopping":      {"shopping", "retail"},
	},
	PromptIntro: "Analyze the credit card content and extract ALL lifestyle benefits: golf, spa, fitness, entertainment, events, and shopping privileges.",
}
