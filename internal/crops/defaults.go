package crops

// Default is the built-in registry. Water needs are mm/day.
var Default = NewRegistry(DefaultKey,
	Profile{
		Key:              "rice",
		TempRange:        &Range{Min: 20, Max: 35},
		DailyNeedMM:      25,
		CriticalStage:    "Flooding required",
		IrrigationMethod: "Continuous flooding",
		Pests: map[PestCondition][]string{
			HighHumidity: {"Brown planthopper", "Rice blast", "Bacterial leaf blight"},
			HighTemp:     {"Rice stem borer", "Leaf folder"},
			Rainy:        {"Sheath blight", "Rice tungro virus"},
		},
	},
	Profile{
		Key:              "wheat",
		TempRange:        &Range{Min: 15, Max: 25},
		DailyNeedMM:      15,
		CriticalStage:    "Tillering & grain filling",
		IrrigationMethod: "Furrow irrigation",
		Pests: map[PestCondition][]string{
			HighHumidity: {"Rust diseases", "Powdery mildew"},
			HighTemp:     {"Aphids", "Termites"},
			Rainy:        {"Septoria leaf blotch", "Fusarium head blight"},
		},
	},
	Profile{
		Key:              "corn",
		DailyNeedMM:      20,
		CriticalStage:    "Tasseling & grain filling",
		IrrigationMethod: "Drip or sprinkler",
	},
	Profile{
		Key:              "brinjal",
		TempRange:        &Range{Min: 20, Max: 35},
		DailyNeedMM:      12,
		CriticalStage:    "Flowering & fruiting",
		IrrigationMethod: "Drip irrigation",
		Pests: map[PestCondition][]string{
			HighHumidity: {"Fruit and shoot borer", "Little leaf disease"},
			HighTemp:     {"Whitefly", "Jassids"},
			Rainy:        {"Damping off", "Bacterial wilt"},
		},
	},
	Profile{
		Key:              "tomato",
		TempRange:        &Range{Min: 18, Max: 30},
		DailyNeedMM:      18,
		CriticalStage:    "Flowering & fruiting",
		IrrigationMethod: "Drip irrigation",
		Pests: map[PestCondition][]string{
			HighHumidity: {"Late blight", "Early blight"},
			HighTemp:     {"Whitefly", "Thrips"},
			Rainy:        {"Septoria leaf spot", "Bacterial canker"},
		},
	},
	Profile{
		Key:              "potato",
		TempRange:        &Range{Min: 15, Max: 25},
		DailyNeedMM:      10,
		CriticalStage:    "Tuber formation",
		IrrigationMethod: "Furrow irrigation",
	},
	Profile{
		Key:              "onion",
		DailyNeedMM:      8,
		CriticalStage:    "Bulb development",
		IrrigationMethod: "Light frequent watering",
	},
	Profile{
		Key:              "cotton",
		DailyNeedMM:      22,
		CriticalStage:    "Flowering & boll formation",
		IrrigationMethod: "Furrow irrigation",
	},
	Profile{
		Key:              "sugarcane",
		DailyNeedMM:      30,
		CriticalStage:    "Throughout growth",
		IrrigationMethod: "Flood irrigation",
	},
	Profile{
		Key:              "soybean",
		DailyNeedMM:      16,
		CriticalStage:    "Pod filling",
		IrrigationMethod: "Sprinkler irrigation",
	},
)
