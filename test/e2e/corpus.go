// Package e2e runs end-to-end tests over a realistic advisory corpus and a
// set of query test cases.
package e2e

import (
	"fmt"
	"time"

	"github.com/agridesk/sahayak/internal/models"
)

// QueryTestCase is one semantic query and the record ID(s) that must come
// back first. Queries are the canonical embedding text of their target
// record, so the deterministic test embedder scores the target at the top.
type QueryTestCase struct {
	Query             string
	ExpectedRecordIDs []string
	Description       string
}

// Corpus holds advisory records and query test cases for end-to-end tests.
type Corpus struct {
	Records      []*models.Record
	TestCases    []QueryTestCase
	TotalRecords int
	TotalQueries int
}

// BuildCorpus returns a corpus of advisory records with distinct query
// texts, spread over states, crops, and months, plus query test cases
// targeting individual records.
func BuildCorpus() *Corpus {
	recs := buildRecords()
	cases := buildQueryTestCases(recs)
	return &Corpus{
		Records:      recs,
		TestCases:    cases,
		TotalRecords: len(recs),
		TotalQueries: len(cases),
	}
}

type corpusTopic struct {
	category  string
	crop      string
	queryType string
	query     string
	answer    string
}

var corpusTopics = []corpusTopic{
	{"Cereals", "Paddy", "Plant Protection", "leaf blast lesions spreading on paddy seedlings", "spray tricyclazole 6 g per 10 litre of water at first lesion and repeat after 12 days"},
	{"Cereals", "Paddy", "Nutrient Management", "yellowing between veins of young paddy leaves", "apply zinc sulphate 25 kg per acre along with the first urea top dressing"},
	{"Cereals", "Paddy", "Water Management", "irrigation interval for transplanted paddy on light soil", "maintain 2 to 5 cm standing water for three weeks after transplanting then irrigate when hairline cracks appear"},
	{"Cereals", "Paddy", "Plant Protection", "stem borer dead hearts visible in paddy tillers", "install 8 pheromone traps per acre and apply cartap hydrochloride 4G at 10 kg per acre"},
	{"Cereals", "Wheat", "Plant Protection", "yellow rust stripes on wheat flag leaves", "spray propiconazole 25 EC at 200 ml per acre as soon as pustules are seen"},
	{"Cereals", "Wheat", "Varieties", "suitable wheat variety for sowing after potato harvest", "sow HD 3059 or PBW 752 up to mid december using 25 percent higher seed rate"},
	{"Cereals", "Wheat", "Weed Management", "phalaris minor escaped first herbicide spray in wheat", "apply pinoxaden 50 ml per acre in 120 litre water before second irrigation"},
	{"Cereals", "Wheat", "Nutrient Management", "nitrogen dose for irrigated timely sown wheat", "apply 50 kg urea per acre at sowing and 55 kg at first irrigation"},
	{"Cereals", "Maize", "Plant Protection", "fall armyworm feeding inside maize whorls", "apply emamectin benzoate 80 g per acre directed into the whorl and set pheromone traps"},
	{"Cereals", "Maize", "Market Information", "current mandi price of maize grain", "maize modal price today is 2090 rupees per quintal at the district mandi"},
	{"Cereals", "Barley", "Varieties", "barley variety for saline irrigation water", "grow DWRB 101 or RD 2794 which tolerate salinity up to 8 dS per metre"},
	{"Cereals", "Bajra", "Plant Protection", "downy mildew white growth on bajra leaves", "uproot infected plants and spray metalaxyl mancozeb 25 g per 10 litre"},
	{"Pulses", "Gram", "Plant Protection", "pod borer larvae seen on gram crop", "spray HaNPV 250 LE per acre or emamectin benzoate at pod initiation stage"},
	{"Pulses", "Gram", "Varieties", "wilt resistant chickpea variety for rainfed field", "sow JG 16 or JAKI 9218 which resist fusarium wilt under rainfed conditions"},
	{"Pulses", "Moong", "Plant Protection", "yellow mosaic spreading in summer moong", "remove infected plants and spray thiamethoxam to check the whitefly vector"},
	{"Pulses", "Arhar", "Cultural Practices", "spacing for arhar on raised beds", "keep 90 cm between rows and 20 cm between plants on broad beds"},
	{"Oilseeds", "Mustard", "Plant Protection", "aphid colonies on mustard inflorescence", "spray thiamethoxam 25 WG at 40 g per acre in evening hours when aphids cross 25 per plant"},
	{"Oilseeds", "Mustard", "Nutrient Management", "sulphur dose for mustard at sowing", "drill 80 kg gypsum per acre at sowing for oil content and yield"},
	{"Oilseeds", "Groundnut", "Plant Protection", "white grub damage in groundnut pegging stage", "drench chlorpyriphos 20 EC at 1 litre per acre with irrigation near the root zone"},
	{"Oilseeds", "Soybean", "Weed Management", "post emergence herbicide for soybean at 20 days", "apply imazethapyr 400 ml per acre at 15 to 20 days after sowing with a flat fan nozzle"},
	{"Oilseeds", "Sunflower", "Cultural Practices", "hand pollination method for sunflower heads", "rub adjacent capitula gently between 8 and 11 am twice a week during flowering"},
	{"Oilseeds", "Sesame", "Seeds and Planting Material", "seed rate of sesame for line sowing", "use 1.2 kg per acre treated seed and keep rows 30 cm apart"},
	{"Vegetables", "Potato", "Plant Protection", "late blight water soaked spots on potato foliage", "spray cymoxanil mancozeb 600 g per acre and repeat after 7 days in humid weather"},
	{"Vegetables", "Potato", "Seeds and Planting Material", "certified seed source for potato kufri jyoti", "book certified kufri jyoti seed at the district horticulture office before september"},
	{"Vegetables", "Onion", "Plant Protection", "purple blotch lesions on onion leaves", "spray azoxystrobin difenoconazole 200 ml per acre with sticker at 10 day interval"},
	{"Vegetables", "Onion", "Market Information", "onion rate in wholesale market today", "onion modal price is 1450 rupees per quintal for medium grade bulbs"},
	{"Vegetables", "Tomato", "Plant Protection", "leaf curl with upward cupping in tomato nursery", "cover the nursery with 40 mesh net and spray spiromesifen against the whitefly vector"},
	{"Vegetables", "Tomato", "Varieties", "tomato hybrid with multiple disease resistance for summer", "transplant arka rakshak which resists leaf curl bacterial wilt and early blight"},
	{"Vegetables", "Chilli", "Plant Protection", "thrips causing upward leaf curl in chilli", "spray fipronil 5 SC at 320 ml per acre and conserve predatory mites"},
	{"Vegetables", "Brinjal", "Plant Protection", "shoot and fruit borer holes in brinjal", "clip and destroy damaged shoots weekly and install 5 pheromone traps per acre"},
	{"Vegetables", "Okra", "Nutrient Management", "fertilizer schedule for okra summer crop", "apply 25 kg DAP and 15 kg MOP per acre as basal with 20 kg urea in two splits"},
	{"Vegetables", "Cabbage", "Plant Protection", "diamondback moth larvae on cabbage heads", "alternate sprays of spinosad and bacillus thuringiensis at weekly interval"},
	{"Vegetables", "Cauliflower", "Nutrient Management", "browning inside cauliflower curd cause", "apply borax 4 kg per acre to soil and spray 0.2 percent solution at curd initiation"},
	{"Vegetables", "Cucumber", "Water Management", "drip schedule for cucumber in polyhouse", "run drip 30 minutes daily at vegetative stage and 45 minutes at fruiting"},
	{"Fruits", "Mango", "Plant Protection", "mango hoppers jumping on panicles", "spray imidacloprid 17.8 SL at 3 ml per 10 litre at panicle emergence avoiding full bloom"},
	{"Fruits", "Mango", "Cultural Practices", "pruning time after mango harvest", "prune within 15 days of harvest removing diseased and crossing branches"},
	{"Fruits", "Banana", "Nutrient Management", "potassium dose for tissue culture banana", "apply 300 g muriate of potash per plant in three splits from the fifth month"},
	{"Fruits", "Banana", "Plant Protection", "sigatoka leaf streaks on banana", "remove affected leaves and spray propiconazole 1 ml per litre with mineral oil"},
	{"Fruits", "Guava", "Plant Protection", "fruit fly maggots inside ripening guava", "hang 10 methyl eugenol traps per acre and harvest at colour break stage"},
	{"Fruits", "Citrus", "Nutrient Management", "zinc deficiency mottling in kinnow leaves", "spray zinc sulphate 0.5 percent with half dose lime in april and august"},
	{"Fruits", "Pomegranate", "Plant Protection", "bacterial blight spots on pomegranate fruits", "prune infected twigs and spray streptocycline 0.5 g with copper oxychloride 25 g per 10 litre"},
	{"Fruits", "Grapes", "Cultural Practices", "girdling time to improve grape berry size", "girdle the trunk with a 4 mm ring when berries reach pea size"},
	{"Fibre Crops", "Cotton", "Plant Protection", "pink bollworm rosette flowers in cotton", "install 8 pheromone traps per acre and release trichogramma cards weekly"},
	{"Fibre Crops", "Cotton", "Nutrient Management", "reddening of cotton leaves in square stage", "spray 1 percent magnesium sulphate twice at 10 day interval"},
	{"Fibre Crops", "Jute", "Water Management", "retting water depth for jute bundles", "ret bundles under 60 to 90 cm of slow moving clean water weighted with banana sheath"},
	{"Sugar and Starch Crops", "Sugarcane", "Plant Protection", "early shoot borer dead hearts in spring sugarcane", "apply chlorantraniliprole granules 10 kg per acre at 35 days and earth up"},
	{"Sugar and Starch Crops", "Sugarcane", "Varieties", "high sugar early maturing cane variety", "plant Co 0238 in february for early crushing with high recovery"},
	{"Others", "Others", "Weather", "rain forecast for the next three days for spraying", "light rain expected in the next 48 hours postpone spraying till friday"},
	{"Others", "Others", "Government Schemes", "how to register for pm kisan installment", "register at the common service centre with aadhaar and bank passbook or on the pmkisan portal"},
	{"Others", "Others", "Government Schemes", "crop insurance last date for kharif season", "enrol under pmfby at the bank or csc before 31 july for kharif crops"},
	{"Cereals", "Jowar", "Plant Protection", "shoot fly dead hearts in jowar seedlings", "re-sow with seed treated with imidacloprid 70 WS and remove affected seedlings"},
	{"Pulses", "Lentil", "Nutrient Management", "rhizobium culture dose for lentil seed", "treat 8 kg seed with one packet each of rhizobium and psb before sowing"},
	{"Vegetables", "Potato", "Weather", "frost protection for potato crop this week", "give light irrigation in the evening and create smoke on expected frost nights"},
	{"Oilseeds", "Mustard", "Weather", "hail damage risk to flowering mustard", "hailstorm warning issued for tomorrow harvest mature pods and cover nursery beds"},
	{"Fruits", "Mango", "Market Information", "dashehari mango price in fruit mandi", "dashehari modal price is 3200 rupees per quintal for grade one fruit"},
	{"Vegetables", "Tomato", "Market Information", "tomato price trend for next month", "tomato prices expected to ease to 900 rupees per quintal as the new harvest arrives"},
	{"Cereals", "Paddy", "Government Schemes", "subsidy on direct seeded rice machine", "40 percent subsidy on DSR seed drill available apply on the agri machinery portal"},
	{"Fibre Crops", "Cotton", "Market Information", "cotton kapas rate in regulated market", "kapas modal price is 7100 rupees per quintal for 29 mm staple"},
	{"Others", "Others", "Soil Testing", "where to test soil before rabi sowing", "collect zig zag samples from 15 cm depth and submit at the block soil testing lab"},
	{"Sugar and Starch Crops", "Sugarcane", "Water Management", "irrigation scheduling for autumn sugarcane", "irrigate at 10 day interval in summer and 20 day interval in winter skipping rainy spells"},
}

var corpusLocations = []struct {
	state    string
	district string
	block    string
}{
	{"Punjab", "Ludhiana", "Samrala"},
	{"Haryana", "Karnal", "Nilokheri"},
	{"Uttar Pradesh", "Lucknow", "Malihabad"},
	{"Maharashtra", "Nashik", "Dindori"},
	{"Madhya Pradesh", "Indore", "Mhow"},
	{"Rajasthan", "Jaipur", "Amber"},
	{"Tamil Nadu", "Thanjavur", "Kumbakonam"},
	{"Andhra Pradesh", "Guntur", "Tenali"},
	{"West Bengal", "Nadia", "Chakdaha"},
	{"Gujarat", "Rajkot", "Gondal"},
}

var corpusSeasons = []string{"Kharif", "Rabi", "Zaid"}

func buildRecords() []*models.Record {
	base := time.Date(2024, 1, 5, 9, 30, 0, 0, time.UTC)
	out := make([]*models.Record, 0, len(corpusTopics))
	for i, tp := range corpusTopics {
		loc := corpusLocations[i%len(corpusLocations)]
		created := base.AddDate(0, 0, i*3)
		year := created.Year()
		month := int(created.Month())
		sector := "AGRICULTURE"
		if tp.category == "Vegetables" || tp.category == "Fruits" {
			sector = "HORTICULTURE"
		}
		out = append(out, &models.Record{
			ID:         fmt.Sprintf("e2e-rec-%03d", i+1),
			State:      loc.state,
			District:   loc.district,
			Block:      loc.block,
			Season:     corpusSeasons[i%len(corpusSeasons)],
			Sector:     sector,
			Category:   tp.category,
			Crop:       tp.crop,
			QueryType:  tp.queryType,
			QueryText:  tp.query,
			AnswerText: tp.answer,
			CreatedOn:  created,
			Year:       &year,
			Month:      &month,
		})
	}
	return out
}

// buildQueryTestCases targets every other record with its own canonical
// embedding text as the query.
func buildQueryTestCases(recs []*models.Record) []QueryTestCase {
	var cases []QueryTestCase
	for i, rec := range recs {
		if i%2 != 0 {
			continue
		}
		cases = append(cases, QueryTestCase{
			Query:             rec.EmbeddingText(),
			ExpectedRecordIDs: []string{rec.ID},
			Description:       fmt.Sprintf("%s %s advisory resolves to %s", rec.Crop, rec.QueryType, rec.ID),
		})
	}
	return cases
}

// RecordByID returns the corpus record with the given ID, or nil.
func (c *Corpus) RecordByID(id string) *models.Record {
	for _, rec := range c.Records {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}
