package orgs

// Fallback is used when no organization file can be read.
var Fallback = []string{
	"5 Elements Brewery", "Absher Construction", "Accel Scaling",
	"AFG VIETNAM", "AI-Assisted Coaching and Mentoring Tools", "Aim up Vietnam",
	"Alchemy", "Alchemy Asia", "Aquila", "Avision Young", "Avison Young",
	"Brooks AI", "Brooks.ai", "Caram Gems",
	"CASH Financial Services Group Limited", "CGM", "Chikita Restaurant",
	"Common Metal", "Compass Events Pte Ltd", "Dao Nguyen Legal",
	"Delight Labs PR", "Design X", "DFDL Lawfirm", "Digital Trends Media Group",
	"Doxa Talent", "Edge8", "Eric Enriquez", "Fairview International School",
	"GRADY GOLF", "Grit Volleyball", "Hermes Landscaping", "Hit Lights LED",
	"HITlights", "IFP Partners Limited", "Ikaria Group", "Invest Migrate",
	"IPPG Vietnam", "Kation", "Kyungbang Vietnam", "MomentsWare",
	"On Target by Abound Health", "Oseran Hahn", "Pho 24", "Power of 3",
	"Qualicious", "Rock Hill Asia", "Single Grain", "Socket", "Sound Acoustic",
	"Studio 3", "Studio3eight", "Surrogate First", "TAL Apparel", "Tartine Saigon",
	"The Icarus Institute", "The Problem Solver", "Unlock Venture Partners",
	"Veracity", "Vespa Adventures", "Vietrose Internatinal",
	"Vietrose International Vietnam", "Vulcan Lab", "Wareease", "West Coast Dental",
	"Westcoast International Dental Clinic", "Wink Hotel Group",
	"Work Healthy Australia", "YPO Gold Forum", "Grady Golf",
}
