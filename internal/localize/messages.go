// Package localize holds the canned user-facing messages of the registration
// and Q&A flows in every supported language, with BCP-47 matching and an
// English fallback. Replies that need interpolation (names, villages, contact
// lines) are exposed as formatting helpers so call sites never concatenate
// translated fragments by hand.
package localize

import (
	"fmt"

	"golang.org/x/text/language"
)

// Message keys. Each key exists in every supported language.
const (
	MsgWelcome         = "welcome"
	MsgClarifyName     = "clarify_name"
	MsgAskVillage      = "ask_village"
	MsgClarifyVillage  = "clarify_village"
	MsgCompleted       = "completed"
	MsgVillageNotFound = "village_not_found"
	MsgOutOfBoundary   = "out_of_boundary"
	MsgGeocodeError    = "geocode_error"
	MsgTechnicalIssue  = "technical_issue"
	MsgEscalation      = "escalation"
	MsgAnswerNotFound  = "answer_not_found"
)

// supported lists the languages the office serves, in matcher priority order.
// English first so it is the fallback for unknown tags.
var supported = []language.Tag{
	language.English,
	language.Marathi,
	language.Hindi,
}

var matcher = language.NewMatcher(supported)

var catalog = map[language.Tag]map[string]string{
	language.English: {
		MsgWelcome:         "Welcome to the Gram Seva helpdesk! To get started, please tell me your full name.",
		MsgClarifyName:     "Sorry, I didn't catch your name. Please reply with your full name, for example: Ramesh Patil.",
		MsgAskVillage:      "Thank you, %s! Which village do you live in?",
		MsgClarifyVillage:  "Sorry, I couldn't identify your village. Please reply with just the village name, for example: Saswad.",
		MsgCompleted:       "You are registered! Name: %s, Village: %s (%s taluka). You can now ask me any question about government schemes and services.",
		MsgVillageNotFound: "I couldn't find a village named \"%s\". Please check the spelling and try again.",
		MsgOutOfBoundary:   "\"%s\" appears to be outside our service area. This helpdesk currently serves villages in %s district only.",
		MsgGeocodeError:    "I'm having trouble looking up village locations right now. Please try again in a little while.",
		MsgTechnicalIssue:  "Sorry, something went wrong on our side. Please send your message again.",
		MsgEscalation:      "I'm having trouble understanding. You can also call the district office at 020-26138000 for help with registration.",
		MsgAnswerNotFound:  "I couldn't find an answer to that in our records. Please try rephrasing, or contact the district office.",
	},
	language.Marathi: {
		MsgWelcome:         "ग्राम सेवा मदत कक्षात आपले स्वागत आहे! सुरुवात करण्यासाठी कृपया आपले पूर्ण नाव सांगा.",
		MsgClarifyName:     "माफ करा, मला आपले नाव समजले नाही. कृपया आपले पूर्ण नाव पाठवा, उदाहरणार्थ: रमेश पाटील.",
		MsgAskVillage:      "धन्यवाद, %s! आपण कोणत्या गावात राहता?",
		MsgClarifyVillage:  "माफ करा, मला आपले गाव ओळखता आले नाही. कृपया फक्त गावाचे नाव पाठवा, उदाहरणार्थ: सासवड.",
		MsgCompleted:       "आपली नोंदणी झाली आहे! नाव: %s, गाव: %s (%s तालुका). आता आपण शासकीय योजना व सेवांबद्दल कोणताही प्रश्न विचारू शकता.",
		MsgVillageNotFound: "\"%s\" नावाचे गाव सापडले नाही. कृपया स्पेलिंग तपासून पुन्हा प्रयत्न करा.",
		MsgOutOfBoundary:   "\"%s\" आमच्या सेवा क्षेत्राबाहेर आहे. हा मदत कक्ष सध्या फक्त %s जिल्ह्यातील गावांसाठी आहे.",
		MsgGeocodeError:    "सध्या गावांची माहिती शोधण्यात अडचण येत आहे. कृपया थोड्या वेळाने पुन्हा प्रयत्न करा.",
		MsgTechnicalIssue:  "माफ करा, आमच्याकडून काही चूक झाली. कृपया आपला संदेश पुन्हा पाठवा.",
		MsgEscalation:      "मला समजण्यात अडचण येत आहे. नोंदणीसाठी आपण जिल्हा कार्यालयाला 020-26138000 वर कॉल करू शकता.",
		MsgAnswerNotFound:  "आमच्या नोंदींमध्ये याचे उत्तर सापडले नाही. कृपया प्रश्न वेगळ्या शब्दांत विचारा किंवा जिल्हा कार्यालयाशी संपर्क साधा.",
	},
	language.Hindi: {
		MsgWelcome:         "ग्राम सेवा हेल्पडेस्क में आपका स्वागत है! शुरू करने के लिए कृपया अपना पूरा नाम बताएं.",
		MsgClarifyName:     "माफ़ कीजिए, मुझे आपका नाम समझ नहीं आया. कृपया अपना पूरा नाम भेजें, उदाहरण: रमेश पाटिल.",
		MsgAskVillage:      "धन्यवाद, %s! आप किस गाँव में रहते हैं?",
		MsgClarifyVillage:  "माफ़ कीजिए, मैं आपका गाँव पहचान नहीं पाया. कृपया केवल गाँव का नाम भेजें, उदाहरण: सासवड.",
		MsgCompleted:       "आपका पंजीकरण हो गया है! नाम: %s, गाँव: %s (%s तालुका). अब आप सरकारी योजनाओं और सेवाओं के बारे में कोई भी प्रश्न पूछ सकते हैं.",
		MsgVillageNotFound: "\"%s\" नाम का गाँव नहीं मिला. कृपया वर्तनी जाँचकर फिर से प्रयास करें.",
		MsgOutOfBoundary:   "\"%s\" हमारे सेवा क्षेत्र से बाहर है. यह हेल्पडेस्क फ़िलहाल केवल %s ज़िले के गाँवों के लिए है.",
		MsgGeocodeError:    "अभी गाँवों की जानकारी खोजने में समस्या आ रही है. कृपया कुछ देर बाद फिर से प्रयास करें.",
		MsgTechnicalIssue:  "माफ़ कीजिए, हमारी ओर से कुछ गड़बड़ हुई. कृपया अपना संदेश दोबारा भेजें.",
		MsgEscalation:      "मुझे समझने में कठिनाई हो रही है. पंजीकरण में मदद के लिए आप ज़िला कार्यालय को 020-26138000 पर कॉल कर सकते हैं.",
		MsgAnswerNotFound:  "हमारे अभिलेखों में इसका उत्तर नहीं मिला. कृपया प्रश्न दूसरे शब्दों में पूछें या ज़िला कार्यालय से संपर्क करें.",
	},
}

// Match resolves an arbitrary BCP-47 string (possibly empty or malformed) to
// the closest supported language. Unknown tags fall back to English.
func Match(lang string) language.Tag {
	tag, err := language.Parse(lang)
	if err != nil {
		return language.English
	}
	matched, _, _ := matcher.Match(tag)
	// The matcher can return extended variants of the supported tags;
	// collapse back to the catalog key.
	base, _ := matched.Base()
	for _, s := range supported {
		if sb, _ := s.Base(); sb == base {
			return s
		}
	}
	return language.English
}

// T returns the message for key in the closest supported language.
// Unknown keys return the technical-issue message rather than an empty reply.
func T(lang, key string) string {
	tag := Match(lang)
	if msg, ok := catalog[tag][key]; ok {
		return msg
	}
	if msg, ok := catalog[language.English][key]; ok {
		return msg
	}
	return catalog[language.English][MsgTechnicalIssue]
}

// Tf returns the message for key formatted with args.
func Tf(lang, key string, args ...any) string {
	return fmt.Sprintf(T(lang, key), args...)
}
